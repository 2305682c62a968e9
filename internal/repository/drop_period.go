package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/pkg/xcontext"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DropPeriodRepository interface {
	// Upsert creates the period in the open status if it does not exist.
	Upsert(ctx context.Context, periodKey string) error
	Get(ctx context.Context, periodKey string) (*entity.DropPeriod, error)
	GetByStatus(ctx context.Context, statuses ...entity.PeriodStatus) ([]entity.DropPeriod, error)

	// AddEntries increases the entry counter of an open period. It returns
	// gorm.ErrRecordNotFound if the period is not open anymore.
	AddEntries(ctx context.Context, periodKey string, n int) error

	Close(ctx context.Context, periodKey string) error

	// UpdateStatus moves the period to status if its current status is one
	// of from. It returns gorm.ErrRecordNotFound otherwise.
	UpdateStatus(ctx context.Context, periodKey string, status entity.PeriodStatus, from ...entity.PeriodStatus) error
}

type dropPeriodRepository struct{}

func NewDropPeriodRepository() *dropPeriodRepository {
	return &dropPeriodRepository{}
}

func (r *dropPeriodRepository) Upsert(ctx context.Context, periodKey string) error {
	return xcontext.DB(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entity.DropPeriod{PeriodKey: periodKey, Status: entity.PeriodOpen}).Error
}

func (r *dropPeriodRepository) Get(ctx context.Context, periodKey string) (*entity.DropPeriod, error) {
	var result entity.DropPeriod
	if err := xcontext.DB(ctx).Take(&result, "period_key=?", periodKey).Error; err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *dropPeriodRepository) GetByStatus(ctx context.Context, statuses ...entity.PeriodStatus) ([]entity.DropPeriod, error) {
	var result []entity.DropPeriod
	err := xcontext.DB(ctx).
		Where("status IN (?)", statuses).
		Order("period_key ASC").
		Find(&result).Error
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *dropPeriodRepository) AddEntries(ctx context.Context, periodKey string, n int) error {
	tx := xcontext.DB(ctx).Model(&entity.DropPeriod{}).
		Where("period_key=? AND status=?", periodKey, entity.PeriodOpen).
		Update("entry_count", gorm.Expr("entry_count+?", n))
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *dropPeriodRepository) Close(ctx context.Context, periodKey string) error {
	return xcontext.DB(ctx).Model(&entity.DropPeriod{}).
		Where("period_key=? AND status=?", periodKey, entity.PeriodOpen).
		Updates(map[string]any{
			"status":    entity.PeriodClosed,
			"closed_at": sql.NullTime{Valid: true, Time: time.Now()},
		}).Error
}

func (r *dropPeriodRepository) UpdateStatus(
	ctx context.Context, periodKey string, status entity.PeriodStatus, from ...entity.PeriodStatus,
) error {
	tx := xcontext.DB(ctx).Model(&entity.DropPeriod{}).
		Where("period_key=? AND status IN (?)", periodKey, from).
		Update("status", status)
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
