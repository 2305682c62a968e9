package repository

import (
	"context"

	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/pkg/xcontext"
	"gorm.io/gorm/clause"
)

type FreeEntryLogRepository interface {
	// Create logs a free claim unless the user or the device already claimed
	// in the same period.
	Create(ctx context.Context, log *entity.FreeEntryLog) (bool, error)
}

type freeEntryLogRepository struct{}

func NewFreeEntryLogRepository() *freeEntryLogRepository {
	return &freeEntryLogRepository{}
}

func (r *freeEntryLogRepository) Create(ctx context.Context, log *entity.FreeEntryLog) (bool, error) {
	result := xcontext.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(log)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}
