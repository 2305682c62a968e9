package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/structs"
	"github.com/google/uuid"
	"github.com/sevendrop/backend/internal/common"
	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/internal/model"
	"github.com/sevendrop/backend/internal/repository"
	"github.com/sevendrop/backend/pkg/dateutil"
	"github.com/sevendrop/backend/pkg/errorx"
	"github.com/sevendrop/backend/pkg/pi"
	"github.com/sevendrop/backend/pkg/xcontext"
	"github.com/sevendrop/backend/pkg/xredis"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const paymentMemoFormat = "Entries for SevenO'Clock Drop (%d entries)"

type EntryDomain interface {
	RegisterUser(context.Context, *model.RegisterUserRequest) (*model.RegisterUserResponse, error)
	GetAppData(context.Context, *model.GetAppDataRequest) (*model.GetAppDataResponse, error)
	ClaimFreeEntry(context.Context, *model.ClaimFreeEntryRequest) (*model.ClaimFreeEntryResponse, error)
	CreatePayment(context.Context, *model.CreatePaymentRequest) (*model.CreatePaymentResponse, error)
	ApprovePayment(context.Context, *model.ApprovePaymentRequest) (*model.ApprovePaymentResponse, error)
	CompletePayment(context.Context, *model.CompletePaymentRequest) (*model.CompletePaymentResponse, error)
}

type entryDomain struct {
	entryGranter

	transactionRepo  repository.TransactionRepository
	freeEntryLogRepo repository.FreeEntryLogRepository
	potAggregator    PotAggregator
	piClient         pi.Client
	redisClient      xredis.Client

	now func() time.Time
}

func NewEntryDomain(
	userRepo repository.UserRepository,
	periodRepo repository.DropPeriodRepository,
	entryRepo repository.EntryRepository,
	transactionRepo repository.TransactionRepository,
	freeEntryLogRepo repository.FreeEntryLogRepository,
	potAggregator PotAggregator,
	piClient pi.Client,
	redisClient xredis.Client,
) *entryDomain {
	return &entryDomain{
		entryGranter: entryGranter{
			userRepo:   userRepo,
			periodRepo: periodRepo,
			entryRepo:  entryRepo,
		},
		transactionRepo:  transactionRepo,
		freeEntryLogRepo: freeEntryLogRepo,
		potAggregator:    potAggregator,
		piClient:         piClient,
		redisClient:      redisClient,
		now:              time.Now,
	}
}

// tier normalizes a payment amount to its tier key and returns the entries
// it buys.
func tier(ctx context.Context, amount decimal.Decimal) (string, int, bool) {
	key := amount.StringFixed(2)
	n, ok := xcontext.Configs(ctx).Drop.Tiers[key]
	return key, n, ok
}

func (d *entryDomain) RegisterUser(
	ctx context.Context, req *model.RegisterUserRequest,
) (*model.RegisterUserResponse, error) {
	req.Wallet = strings.TrimSpace(req.Wallet)
	if req.UID == "" || req.Wallet == "" {
		return nil, errorx.New(errorx.BadRequest, "Require uid and wallet")
	}

	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()

	if err := d.registerUser(ctx, req.UID, req.Wallet); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot register user %s: %v", req.UID, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot register the user")
	}

	return &model.RegisterUserResponse{}, nil
}

func (d *entryDomain) GetAppData(ctx context.Context, req *model.GetAppDataRequest) (*model.GetAppDataResponse, error) {
	now := d.now()
	cfg := xcontext.Configs(ctx).Drop
	key := currentPeriodKey(ctx, now)

	pot, err := d.cachedPot(ctx, key)
	if err != nil {
		return nil, err
	}

	resp := &model.GetAppDataResponse{
		PotValue:          pot,
		NextDropTimestamp: dateutil.NextDrop(now, cfg.UTCOffset, cfg.Hour).UnixMilli(),
	}

	if req.UID != "" {
		ctx, cancel := withStoreTimeout(ctx)
		defer cancel()

		resp.UserEntries, err = d.entryRepo.CountByUserAndPeriod(ctx, req.UID, key)
		if err != nil {
			xcontext.Logger(ctx).Errorf("Cannot count entries of %s: %v", req.UID, err)
			return nil, errorx.New(errorx.StoreUnavailable, "Cannot read your entries")
		}
	}

	return resp, nil
}

// cachedPot reads the pot of the period through the shared cache. The cache
// is best effort: a redis failure falls back to the store.
func (d *entryDomain) cachedPot(ctx context.Context, key string) (string, error) {
	var pot string
	err := d.redisClient.GetObj(ctx, common.RedisKeyPot(key), &pot)
	if err == nil {
		return pot, nil
	}

	if !errors.Is(err, xredis.ErrNil) {
		xcontext.Logger(ctx).Warnf("Cannot get cached pot of %s: %v", key, err)
	}

	total, err := d.potAggregator.ComputePot(ctx, key)
	if err != nil {
		return "", err
	}

	pot = total.String()
	ttl := xcontext.Configs(ctx).Drop.PotCacheTTL
	if err := d.redisClient.SetObj(ctx, common.RedisKeyPot(key), pot, ttl); err != nil {
		xcontext.Logger(ctx).Warnf("Cannot cache pot of %s: %v", key, err)
	}

	return pot, nil
}

func (d *entryDomain) invalidatePot(ctx context.Context, key string) {
	if err := d.redisClient.Del(ctx, common.RedisKeyPot(key)); err != nil {
		xcontext.Logger(ctx).Warnf("Cannot invalidate cached pot of %s: %v", key, err)
	}
}

func (d *entryDomain) ClaimFreeEntry(
	ctx context.Context, req *model.ClaimFreeEntryRequest,
) (*model.ClaimFreeEntryResponse, error) {
	if req.UID == "" || req.DeviceFP == "" {
		return nil, errorx.New(errorx.BadRequest, "Require uid and device fingerprint")
	}

	key := currentPeriodKey(ctx, d.now())

	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()

	ctx = xcontext.WithDBTransaction(ctx)
	defer xcontext.WithRollbackDBTransaction(ctx)

	if err := d.registerUser(ctx, req.UID, strings.TrimSpace(req.Wallet)); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot upsert user %s: %v", req.UID, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot claim the free entry")
	}

	created, err := d.freeEntryLogRepo.Create(ctx, &entity.FreeEntryLog{
		Base:      entity.Base{ID: uuid.NewString()},
		UserUID:   req.UID,
		DeviceFP:  req.DeviceFP,
		PeriodKey: key,
	})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot log free entry of %s: %v", req.UID, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot claim the free entry")
	}

	if !created {
		return nil, errorx.New(errorx.AlreadyExists, "Free entry already claimed today")
	}

	if err := d.grant(ctx, req.UID, key, entity.EntryFree, "", 1); err != nil {
		if errors.Is(err, errPeriodClosed) {
			return nil, errorx.New(errorx.Unavailable, "The drop is running, try again in a moment")
		}

		xcontext.Logger(ctx).Errorf("Cannot grant free entry to %s: %v", req.UID, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot claim the free entry")
	}

	if err := d.userRepo.MarkClaimedToday(ctx, req.UID); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot mark free claim of %s: %v", req.UID, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot claim the free entry")
	}

	if err := xcontext.CommitDBTransaction(ctx); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot commit free entry of %s: %v", req.UID, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot claim the free entry")
	}

	return &model.ClaimFreeEntryResponse{PeriodKey: key}, nil
}

func (d *entryDomain) CreatePayment(
	ctx context.Context, req *model.CreatePaymentRequest,
) (*model.CreatePaymentResponse, error) {
	if req.UID == "" {
		return nil, errorx.New(errorx.BadRequest, "Require uid")
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		return nil, errorx.New(errorx.BadRequest, "Invalid amount")
	}

	key, n, ok := tier(ctx, amount)
	if !ok {
		return nil, errorx.New(errorx.BadRequest, "Amount %s is not a valid tier", req.Amount)
	}

	storeCtx, cancel := withStoreTimeout(ctx)
	defer cancel()
	if err := d.registerUser(storeCtx, req.UID, strings.TrimSpace(req.Wallet)); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot upsert user %s: %v", req.UID, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot create the payment")
	}

	return &model.CreatePaymentResponse{
		Payment: model.PaymentDescriptor{
			Amount:   json.Number(key),
			Memo:     fmt.Sprintf(paymentMemoFormat, n),
			Metadata: structs.Map(model.PaymentMetadata{UID: req.UID, Tier: key}),
		},
	}, nil
}

func providerError(ctx context.Context, action, paymentID string, err error) error {
	if pi.IsRejected(err) {
		xcontext.Logger(ctx).Debugf("Provider rejected %s of %s: %v", action, paymentID, err)
		return errorx.New(errorx.BadRequest, "Payment %s was rejected", paymentID)
	}

	xcontext.Logger(ctx).Errorf("Cannot %s payment %s: %v", action, paymentID, err)
	return errorx.New(errorx.BadResponse, "Cannot reach the payment provider")
}

func (d *entryDomain) ApprovePayment(
	ctx context.Context, req *model.ApprovePaymentRequest,
) (*model.ApprovePaymentResponse, error) {
	if req.PaymentID == "" || req.UID == "" {
		return nil, errorx.New(errorx.BadRequest, "Require payment id and uid")
	}

	payment, err := d.piClient.GetPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, providerError(ctx, "get", req.PaymentID, err)
	}

	if payment.UserUID != req.UID {
		return nil, errorx.New(errorx.PermissionDenied, "Payment does not belong to you")
	}

	if uid := payment.MetadataString("uid"); uid != "" && uid != req.UID {
		return nil, errorx.New(errorx.PermissionDenied, "Payment does not belong to you")
	}

	if _, _, ok := tier(ctx, payment.Amount); !ok {
		return nil, errorx.New(errorx.BadRequest, "Amount %s is not a valid tier", payment.Amount)
	}

	if payment.Status.DeveloperApproved {
		return &model.ApprovePaymentResponse{}, nil
	}

	if _, err := d.piClient.ApprovePayment(ctx, req.PaymentID); err != nil {
		return nil, providerError(ctx, "approve", req.PaymentID, err)
	}

	return &model.ApprovePaymentResponse{}, nil
}

func (d *entryDomain) CompletePayment(
	ctx context.Context, req *model.CompletePaymentRequest,
) (*model.CompletePaymentResponse, error) {
	if req.PaymentID == "" || req.TxID == "" {
		return nil, errorx.New(errorx.BadRequest, "Require payment id and txid")
	}

	if resp, err := d.completedPayment(ctx, req.PaymentID); err != nil || resp != nil {
		return resp, err
	}

	payment, err := d.piClient.GetPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, providerError(ctx, "get", req.PaymentID, err)
	}

	if payment.UserUID == "" {
		return nil, errorx.New(errorx.BadRequest, "Payment %s has no user", req.PaymentID)
	}

	tierKey, n, ok := tier(ctx, payment.Amount)
	if !ok {
		return nil, errorx.New(errorx.BadRequest, "Amount %s is not a valid tier", payment.Amount)
	}

	if !payment.Status.DeveloperCompleted {
		if _, err := d.piClient.CompletePayment(ctx, req.PaymentID, req.TxID); err != nil {
			return nil, providerError(ctx, "complete", req.PaymentID, err)
		}
	}

	// A payment completed while its period is being drawn counts for the
	// next period.
	key := currentPeriodKey(ctx, d.now())
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := d.recordPayment(ctx, payment, req.TxID, key, tierKey, n)
		if errors.Is(err, errPeriodClosed) {
			xcontext.Logger(ctx).Infof("Period %s is closed, payment %s goes to the next one", key, req.PaymentID)
			key, _ = dateutil.ShiftPeriodKey(key, 1)
			continue
		}

		if err != nil {
			return nil, err
		}

		return resp, nil
	}

	return nil, errorx.New(errorx.Unavailable, "The drop is running, try again in a moment")
}

// completedPayment returns the result of a payment which was already
// recorded, or nil if it was not.
func (d *entryDomain) completedPayment(ctx context.Context, paymentID string) (*model.CompletePaymentResponse, error) {
	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()

	tx, err := d.transactionRepo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		xcontext.Logger(ctx).Errorf("Cannot get transaction of payment %s: %v", paymentID, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot complete the payment")
	}

	_, n, _ := tier(ctx, tx.Amount)
	return &model.CompletePaymentResponse{PeriodKey: tx.PeriodKey, Entries: n}, nil
}

func (d *entryDomain) recordPayment(
	ctx context.Context,
	payment *pi.Payment,
	txid, key, tierKey string,
	n int,
) (*model.CompletePaymentResponse, error) {
	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()

	txCtx := xcontext.WithDBTransaction(ctx)
	defer xcontext.WithRollbackDBTransaction(txCtx)

	// The sender of a user-to-app payment is the user's wallet.
	if err := d.registerUser(txCtx, payment.UserUID, payment.FromAddress); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot upsert user %s: %v", payment.UserUID, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot complete the payment")
	}

	created, err := d.transactionRepo.Create(txCtx, &entity.Transaction{
		Base:      entity.Base{ID: uuid.NewString()},
		UserUID:   payment.UserUID,
		PeriodKey: key,
		Type:      entity.TransactionEntry,
		Amount:    payment.Amount,
		PaymentID: sqlString(payment.Identifier),
		TxID:      txid,
	})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot record payment %s: %v", payment.Identifier, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot complete the payment")
	}

	if !created {
		// A concurrent completion recorded it first.
		xcontext.WithRollbackDBTransaction(txCtx)
		resp, err := d.completedPayment(ctx, payment.Identifier)
		if err != nil {
			return nil, err
		}

		if resp == nil {
			return nil, errorx.New(errorx.Unavailable, "Payment %s is being completed", payment.Identifier)
		}

		return resp, nil
	}

	if err := d.grant(txCtx, payment.UserUID, key, entity.EntryPaid, tierKey, n); err != nil {
		if errors.Is(err, errPeriodClosed) {
			return nil, err
		}

		xcontext.Logger(ctx).Errorf("Cannot grant entries of payment %s: %v", payment.Identifier, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot complete the payment")
	}

	if err := xcontext.CommitDBTransaction(txCtx); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot commit payment %s: %v", payment.Identifier, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot complete the payment")
	}

	d.invalidatePot(ctx, key)
	xcontext.Logger(ctx).Infof("Payment %s of %s granted %d entries in %s",
		payment.Identifier, payment.UserUID, n, key)

	return &model.CompletePaymentResponse{PeriodKey: key, Entries: n}, nil
}
