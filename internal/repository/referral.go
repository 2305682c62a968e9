package repository

import (
	"context"

	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/pkg/xcontext"
	"gorm.io/gorm/clause"
)

type ReferralRepository interface {
	// Create records a referral unless the new user was already referred.
	Create(ctx context.Context, referral *entity.Referral) (bool, error)

	// CreateCodeUsage records a code redemption unless the code was used.
	CreateCodeUsage(ctx context.Context, usage *entity.ReferralCodeUsage) (bool, error)
}

type referralRepository struct{}

func NewReferralRepository() *referralRepository {
	return &referralRepository{}
}

func (r *referralRepository) Create(ctx context.Context, referral *entity.Referral) (bool, error) {
	result := xcontext.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(referral)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *referralRepository) CreateCodeUsage(ctx context.Context, usage *entity.ReferralCodeUsage) (bool, error) {
	result := xcontext.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(usage)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}
