package repository

import (
	"context"

	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/pkg/xcontext"
)

type EntryRepository interface {
	CreateMany(ctx context.Context, entries []entity.Entry) error

	// GetByPeriod returns the entries of a period in a stable order, so the
	// same snapshot always yields the same sequence.
	GetByPeriod(ctx context.Context, periodKey string) ([]entity.Entry, error)
	CountByPeriod(ctx context.Context, periodKey string) (int64, error)
	CountByUserAndPeriod(ctx context.Context, uid, periodKey string) (int64, error)
	DeleteByPeriod(ctx context.Context, periodKey string) error
}

type entryRepository struct{}

func NewEntryRepository() *entryRepository {
	return &entryRepository{}
}

func (r *entryRepository) CreateMany(ctx context.Context, entries []entity.Entry) error {
	return xcontext.DB(ctx).CreateInBatches(entries, 100).Error
}

func (r *entryRepository) GetByPeriod(ctx context.Context, periodKey string) ([]entity.Entry, error) {
	var result []entity.Entry
	err := xcontext.DB(ctx).
		Where("period_key=?", periodKey).
		Order("created_at ASC").
		Order("id ASC").
		Find(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *entryRepository) CountByPeriod(ctx context.Context, periodKey string) (int64, error) {
	var result int64
	err := xcontext.DB(ctx).Model(&entity.Entry{}).
		Where("period_key=?", periodKey).
		Count(&result).Error
	if err != nil {
		return 0, err
	}

	return result, nil
}

func (r *entryRepository) CountByUserAndPeriod(ctx context.Context, uid, periodKey string) (int64, error) {
	var result int64
	err := xcontext.DB(ctx).Model(&entity.Entry{}).
		Where("user_uid=? AND period_key=?", uid, periodKey).
		Count(&result).Error
	if err != nil {
		return 0, err
	}

	return result, nil
}

func (r *entryRepository) DeleteByPeriod(ctx context.Context, periodKey string) error {
	return xcontext.DB(ctx).Delete(&entity.Entry{}, "period_key=?", periodKey).Error
}
