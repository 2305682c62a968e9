package repository

import (
	"context"

	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/pkg/xcontext"
	"gorm.io/gorm/clause"
)

type PotHistoryRepository interface {
	// Create archives the pot of a period once. It reports whether history
	// was inserted.
	Create(ctx context.Context, history *entity.PotHistory) (bool, error)
	GetByPeriod(ctx context.Context, periodKey string) (*entity.PotHistory, error)
}

type potHistoryRepository struct{}

func NewPotHistoryRepository() *potHistoryRepository {
	return &potHistoryRepository{}
}

func (r *potHistoryRepository) Create(ctx context.Context, history *entity.PotHistory) (bool, error) {
	result := xcontext.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(history)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *potHistoryRepository) GetByPeriod(ctx context.Context, periodKey string) (*entity.PotHistory, error) {
	var result entity.PotHistory
	if err := xcontext.DB(ctx).Take(&result, "period_key=?", periodKey).Error; err != nil {
		return nil, err
	}

	return &result, nil
}
