package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/pkg/xcontext"
	"gorm.io/gorm"
)

type PayoutRepository interface {
	CreateMany(ctx context.Context, payouts []entity.Payout) error
	GetByID(ctx context.Context, id string) (*entity.Payout, error)
	GetByPeriod(ctx context.Context, periodKey string) ([]entity.Payout, error)

	// Claim moves the payout to status if its status is one of from. It
	// returns gorm.ErrRecordNotFound if another worker got it first.
	Claim(ctx context.Context, id string, status entity.PayoutStatus, from ...entity.PayoutStatus) error

	// MarkCreated records the provider payment of a payout being sent.
	MarkCreated(ctx context.Context, id, providerPaymentID, destinationAddress string) error
	MarkSent(ctx context.Context, id, txid string) error

	// MarkUnsent moves a claimed payout from the from status to status.
	MarkUnsent(ctx context.Context, id string, from, status entity.PayoutStatus, lastError string) error

	// ExpireSending releases payouts claimed before the given time: sending
	// becomes unknown and completing goes back to created.
	ExpireSending(ctx context.Context, periodKey string, before time.Time) error
	GetUnsentPeriodKeys(ctx context.Context) ([]string, error)
}

type payoutRepository struct{}

func NewPayoutRepository() *payoutRepository {
	return &payoutRepository{}
}

func (r *payoutRepository) CreateMany(ctx context.Context, payouts []entity.Payout) error {
	return xcontext.DB(ctx).Create(payouts).Error
}

func (r *payoutRepository) GetByID(ctx context.Context, id string) (*entity.Payout, error) {
	var result entity.Payout
	if err := xcontext.DB(ctx).Take(&result, "id=?", id).Error; err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *payoutRepository) GetByPeriod(ctx context.Context, periodKey string) ([]entity.Payout, error) {
	var result []entity.Payout
	err := xcontext.DB(ctx).
		Where("period_key=?", periodKey).
		Order("kind DESC").
		Find(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *payoutRepository) Claim(
	ctx context.Context, id string, status entity.PayoutStatus, from ...entity.PayoutStatus,
) error {
	updates := map[string]any{"status": status}
	if status == entity.PayoutSending {
		updates["attempts"] = gorm.Expr("attempts+?", 1)
	}

	tx := xcontext.DB(ctx).Model(&entity.Payout{}).
		Where("id=? AND status IN (?)", id, from).
		Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *payoutRepository) MarkCreated(ctx context.Context, id, providerPaymentID, destinationAddress string) error {
	tx := xcontext.DB(ctx).Model(&entity.Payout{}).
		Where("id=? AND status=?", id, entity.PayoutSending).
		Updates(map[string]any{
			"status":              entity.PayoutCreated,
			"provider_payment_id": providerPaymentID,
			"destination_address": destinationAddress,
			"last_error":          "",
		})
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *payoutRepository) MarkSent(ctx context.Context, id, txid string) error {
	return xcontext.DB(ctx).Model(&entity.Payout{}).
		Where("id=?", id).
		Updates(map[string]any{
			"status":     entity.PayoutSent,
			"tx_id":      txid,
			"last_error": "",
			"sent_at":    sql.NullTime{Valid: true, Time: time.Now()},
		}).Error
}

func (r *payoutRepository) MarkUnsent(
	ctx context.Context, id string, from, status entity.PayoutStatus, lastError string,
) error {
	return xcontext.DB(ctx).Model(&entity.Payout{}).
		Where("id=? AND status=?", id, from).
		Updates(map[string]any{
			"status":     status,
			"last_error": lastError,
		}).Error
}

func (r *payoutRepository) ExpireSending(ctx context.Context, periodKey string, before time.Time) error {
	for from, to := range map[entity.PayoutStatus]entity.PayoutStatus{
		entity.PayoutSending:    entity.PayoutUnknown,
		entity.PayoutCompleting: entity.PayoutCreated,
	} {
		err := xcontext.DB(ctx).Model(&entity.Payout{}).
			Where("period_key=? AND status=? AND updated_at<?", periodKey, from, before).
			Updates(map[string]any{
				"status":     to,
				"last_error": "interrupted while " + string(from),
			}).Error
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *payoutRepository) GetUnsentPeriodKeys(ctx context.Context) ([]string, error) {
	var result []string
	err := xcontext.DB(ctx).Model(&entity.Payout{}).
		Distinct("period_key").
		Where("status<>?", entity.PayoutSent).
		Order("period_key ASC").
		Pluck("period_key", &result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}
