package repository

import (
	"context"

	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/pkg/xcontext"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository interface {
	Upsert(ctx context.Context, uid string) error
	GetByUID(ctx context.Context, uid string) (*entity.User, error)
	IncreaseEntries(ctx context.Context, uid string, n int) error
	SetWallet(ctx context.Context, uid, wallet string) error
	MarkClaimedToday(ctx context.Context, uid string) error

	// ResetClaimedToday clears the free claim flag of every user who has not
	// claimed in periodKey yet.
	ResetClaimedToday(ctx context.Context, periodKey string) error
}

type userRepository struct{}

func NewUserRepository() *userRepository {
	return &userRepository{}
}

func (r *userRepository) Upsert(ctx context.Context, uid string) error {
	return xcontext.DB(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entity.User{UID: uid}).Error
}

func (r *userRepository) GetByUID(ctx context.Context, uid string) (*entity.User, error) {
	var result entity.User
	if err := xcontext.DB(ctx).Take(&result, "uid=?", uid).Error; err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *userRepository) IncreaseEntries(ctx context.Context, uid string, n int) error {
	tx := xcontext.DB(ctx).Model(&entity.User{}).
		Where("uid=?", uid).
		Update("entries", gorm.Expr("entries+?", n))
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *userRepository) SetWallet(ctx context.Context, uid, wallet string) error {
	return xcontext.DB(ctx).Model(&entity.User{}).
		Where("uid=?", uid).
		Update("wallet", wallet).Error
}

func (r *userRepository) MarkClaimedToday(ctx context.Context, uid string) error {
	return xcontext.DB(ctx).Model(&entity.User{}).
		Where("uid=?", uid).
		Update("claimed_today", true).Error
}

func (r *userRepository) ResetClaimedToday(ctx context.Context, periodKey string) error {
	claimed := xcontext.DB(ctx).Model(&entity.FreeEntryLog{}).
		Select("user_uid").
		Where("period_key=?", periodKey)

	return xcontext.DB(ctx).Model(&entity.User{}).
		Where("claimed_today=? AND uid NOT IN (?)", true, claimed).
		Update("claimed_today", false).Error
}
