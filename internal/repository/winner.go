package repository

import (
	"context"

	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/pkg/xcontext"
	"gorm.io/gorm/clause"
)

type WinnerRepository interface {
	// Create inserts the settlement unless the period already has one. It
	// reports whether winner was inserted.
	Create(ctx context.Context, winner *entity.Winner) (bool, error)
	GetByPeriod(ctx context.Context, periodKey string) (*entity.Winner, error)
	CountByPeriod(ctx context.Context, periodKey string) (int64, error)
}

type winnerRepository struct{}

func NewWinnerRepository() *winnerRepository {
	return &winnerRepository{}
}

func (r *winnerRepository) Create(ctx context.Context, winner *entity.Winner) (bool, error) {
	result := xcontext.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(winner)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *winnerRepository) GetByPeriod(ctx context.Context, periodKey string) (*entity.Winner, error) {
	var result entity.Winner
	if err := xcontext.DB(ctx).Take(&result, "period_key=?", periodKey).Error; err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *winnerRepository) CountByPeriod(ctx context.Context, periodKey string) (int64, error) {
	var result int64
	err := xcontext.DB(ctx).Model(&entity.Winner{}).
		Where("period_key=?", periodKey).
		Count(&result).Error
	if err != nil {
		return 0, err
	}

	return result, nil
}
