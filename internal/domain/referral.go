package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/internal/model"
	"github.com/sevendrop/backend/internal/repository"
	"github.com/sevendrop/backend/pkg/errorx"
	"github.com/sevendrop/backend/pkg/xcontext"
	"golang.org/x/exp/slices"
)

type ReferralDomain interface {
	ApplyReferralCode(context.Context, *model.ApplyReferralCodeRequest) (*model.ApplyReferralCodeResponse, error)
	ReferUser(context.Context, *model.ReferUserRequest) (*model.ReferUserResponse, error)
}

type referralDomain struct {
	entryGranter

	referralRepo repository.ReferralRepository

	now func() time.Time
}

func NewReferralDomain(
	userRepo repository.UserRepository,
	periodRepo repository.DropPeriodRepository,
	entryRepo repository.EntryRepository,
	referralRepo repository.ReferralRepository,
) *referralDomain {
	return &referralDomain{
		entryGranter: entryGranter{
			userRepo:   userRepo,
			periodRepo: periodRepo,
			entryRepo:  entryRepo,
		},
		referralRepo: referralRepo,
		now:          time.Now,
	}
}

// IsReferralValid reports whether referrer may be rewarded for bringing
// newUser.
func IsReferralValid(referrer, newUser string) bool {
	return referrer != "" && newUser != "" && referrer != newUser
}

func (d *referralDomain) ApplyReferralCode(
	ctx context.Context, req *model.ApplyReferralCodeRequest,
) (*model.ApplyReferralCodeResponse, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if req.UID == "" || code == "" {
		return nil, errorx.New(errorx.BadRequest, "Require uid and code")
	}

	cfg := xcontext.Configs(ctx).Drop
	if !slices.Contains(cfg.ReferralCodes, code) {
		return nil, errorx.New(errorx.BadRequest, "Invalid referral code")
	}

	key := currentPeriodKey(ctx, d.now())

	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()

	ctx = xcontext.WithDBTransaction(ctx)
	defer xcontext.WithRollbackDBTransaction(ctx)

	if err := d.userRepo.Upsert(ctx, req.UID); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot upsert user %s: %v", req.UID, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot apply the referral code")
	}

	created, err := d.referralRepo.CreateCodeUsage(ctx, &entity.ReferralCodeUsage{
		Base:    entity.Base{ID: uuid.NewString()},
		Code:    code,
		UserUID: req.UID,
	})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot record usage of code %s: %v", code, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot apply the referral code")
	}

	if !created {
		return nil, errorx.New(errorx.AlreadyExists, "Referral code was already used")
	}

	if err := d.grant(ctx, req.UID, key, entity.EntryReferralCode, "", cfg.ReferralCodeEntries); err != nil {
		if errors.Is(err, errPeriodClosed) {
			return nil, errorx.New(errorx.Unavailable, "The drop is running, try again in a moment")
		}

		xcontext.Logger(ctx).Errorf("Cannot grant code entries to %s: %v", req.UID, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot apply the referral code")
	}

	user, err := d.userRepo.GetByUID(ctx, req.UID)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get user %s: %v", req.UID, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot apply the referral code")
	}

	if err := xcontext.CommitDBTransaction(ctx); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot commit code usage of %s: %v", req.UID, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot apply the referral code")
	}

	return &model.ApplyReferralCodeResponse{NewEntryCount: user.Entries}, nil
}

func (d *referralDomain) ReferUser(ctx context.Context, req *model.ReferUserRequest) (*model.ReferUserResponse, error) {
	if !IsReferralValid(req.ReferrerUID, req.NewUserUID) {
		return nil, errorx.New(errorx.BadRequest, "Invalid referral")
	}

	key := currentPeriodKey(ctx, d.now())
	bonus := xcontext.Configs(ctx).Drop.ReferralBonusEntries

	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()

	ctx = xcontext.WithDBTransaction(ctx)
	defer xcontext.WithRollbackDBTransaction(ctx)

	for _, uid := range []string{req.ReferrerUID, req.NewUserUID} {
		if err := d.userRepo.Upsert(ctx, uid); err != nil {
			xcontext.Logger(ctx).Errorf("Cannot upsert user %s: %v", uid, err)
			return nil, errorx.New(errorx.StoreUnavailable, "Cannot record the referral")
		}
	}

	created, err := d.referralRepo.Create(ctx, &entity.Referral{
		Base:        entity.Base{ID: uuid.NewString()},
		ReferrerUID: req.ReferrerUID,
		NewUserUID:  req.NewUserUID,
	})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot record referral of %s: %v", req.NewUserUID, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot record the referral")
	}

	if !created {
		return nil, errorx.New(errorx.AlreadyExists, "User %s was already referred", req.NewUserUID)
	}

	for _, uid := range []string{req.ReferrerUID, req.NewUserUID} {
		if err := d.grant(ctx, uid, key, entity.EntryReferral, "", bonus); err != nil {
			if errors.Is(err, errPeriodClosed) {
				return nil, errorx.New(errorx.Unavailable, "The drop is running, try again in a moment")
			}

			xcontext.Logger(ctx).Errorf("Cannot grant referral entries to %s: %v", uid, err)
			return nil, errorx.New(errorx.StoreUnavailable, "Cannot record the referral")
		}
	}

	if err := xcontext.CommitDBTransaction(ctx); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot commit referral of %s: %v", req.NewUserUID, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot record the referral")
	}

	return &model.ReferUserResponse{}, nil
}
