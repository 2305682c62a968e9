package repository

import (
	"context"

	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/pkg/xcontext"
	"gorm.io/gorm/clause"
)

type TransactionRepository interface {
	// Create inserts tx unless a transaction with the same payment id
	// exists. It reports whether tx was inserted.
	Create(ctx context.Context, tx *entity.Transaction) (bool, error)
	GetByPeriodAndType(ctx context.Context, periodKey string, txType entity.TransactionType) ([]entity.Transaction, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*entity.Transaction, error)
}

type transactionRepository struct{}

func NewTransactionRepository() *transactionRepository {
	return &transactionRepository{}
}

func (r *transactionRepository) Create(ctx context.Context, tx *entity.Transaction) (bool, error) {
	result := xcontext.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(tx)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *transactionRepository) GetByPeriodAndType(
	ctx context.Context, periodKey string, txType entity.TransactionType,
) ([]entity.Transaction, error) {
	var result []entity.Transaction
	err := xcontext.DB(ctx).
		Where("period_key=? AND type=?", periodKey, txType).
		Find(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *transactionRepository) GetByPaymentID(ctx context.Context, paymentID string) (*entity.Transaction, error) {
	var result entity.Transaction
	if err := xcontext.DB(ctx).Take(&result, "payment_id=?", paymentID).Error; err != nil {
		return nil, err
	}

	return &result, nil
}
