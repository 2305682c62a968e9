package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/structs"
	"github.com/google/uuid"
	"github.com/sevendrop/backend/internal/common"
	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/internal/model"
	"github.com/sevendrop/backend/internal/repository"
	"github.com/sevendrop/backend/pkg/crypto"
	"github.com/sevendrop/backend/pkg/dateutil"
	"github.com/sevendrop/backend/pkg/errorx"
	"github.com/sevendrop/backend/pkg/pi"
	"github.com/sevendrop/backend/pkg/pubsub"
	"github.com/sevendrop/backend/pkg/xcontext"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	winnerMemo = "Seven O'Clock Drop Winner"
	feeMemo    = "Platform Fee"

	// A payout left in sending longer than this was interrupted mid-call.
	staleSendingAfter = 10 * time.Minute
)

type DropDomain interface {
	GetPot(context.Context, *model.GetPotRequest) (*model.GetPotResponse, error)
	RunDraw(context.Context, *model.RunDrawRequest) (*model.RunDrawResponse, error)
	GetSettlement(context.Context, *model.GetSettlementRequest) (*model.GetSettlementResponse, error)
	RetryPayouts(context.Context, *model.RetryPayoutsRequest) (*model.RetryPayoutsResponse, error)
	ResetPeriod(context.Context, *model.ResetPeriodRequest) (*model.ResetPeriodResponse, error)

	// RetryAllPayouts retries the unsent payouts of every settled period.
	RetryAllPayouts(context.Context) error
}

type dropDomain struct {
	userRepo        repository.UserRepository
	periodRepo      repository.DropPeriodRepository
	entryRepo       repository.EntryRepository
	transactionRepo repository.TransactionRepository
	winnerRepo      repository.WinnerRepository
	payoutRepo      repository.PayoutRepository
	potHistoryRepo  repository.PotHistoryRepository
	potAggregator   PotAggregator
	piClient        pi.Client
	signer          pi.Signer
	publisher       pubsub.Publisher

	randUint64 func() (uint64, error)
	now        func() time.Time
}

func NewDropDomain(
	userRepo repository.UserRepository,
	periodRepo repository.DropPeriodRepository,
	entryRepo repository.EntryRepository,
	transactionRepo repository.TransactionRepository,
	winnerRepo repository.WinnerRepository,
	payoutRepo repository.PayoutRepository,
	potHistoryRepo repository.PotHistoryRepository,
	potAggregator PotAggregator,
	piClient pi.Client,
	signer pi.Signer,
	publisher pubsub.Publisher,
) *dropDomain {
	return &dropDomain{
		userRepo:        userRepo,
		periodRepo:      periodRepo,
		entryRepo:       entryRepo,
		transactionRepo: transactionRepo,
		winnerRepo:      winnerRepo,
		payoutRepo:      payoutRepo,
		potHistoryRepo:  potHistoryRepo,
		potAggregator:   potAggregator,
		piClient:        piClient,
		signer:          signer,
		publisher:       publisher,
		randUint64:      crypto.RandUint64,
		now:             time.Now,
	}
}

// endedPeriodKey validates key as a period whose drop already happened. An
// empty key means the last ended period.
func (d *dropDomain) endedPeriodKey(ctx context.Context, key string) (string, error) {
	if key == "" {
		return lastEndedPeriodKey(ctx, d.now()), nil
	}

	if !dateutil.ValidPeriodKey(key) {
		return "", errorx.New(errorx.BadRequest, "Invalid period key %s", key)
	}

	if key >= currentPeriodKey(ctx, d.now()) {
		return "", errorx.New(errorx.BadRequest, "The drop of %s has not happened yet", key)
	}

	return key, nil
}

func (d *dropDomain) GetPot(ctx context.Context, req *model.GetPotRequest) (*model.GetPotResponse, error) {
	key := req.PeriodKey
	if key == "" {
		key = currentPeriodKey(ctx, d.now())
	} else if !dateutil.ValidPeriodKey(key) {
		return nil, errorx.New(errorx.BadRequest, "Invalid period key %s", key)
	}

	pot, err := d.potAggregator.ComputePot(ctx, key)
	if err != nil {
		return nil, err
	}

	return &model.GetPotResponse{PeriodKey: key, Pot: pot.String()}, nil
}

func (d *dropDomain) RunDraw(ctx context.Context, req *model.RunDrawRequest) (*model.RunDrawResponse, error) {
	key, err := d.endedPeriodKey(ctx, req.PeriodKey)
	if err != nil {
		return nil, err
	}

	winner, err := d.getWinner(ctx, key)
	if err != nil {
		return nil, err
	}

	if winner != nil {
		return d.alreadySettled(ctx, winner)
	}

	if err := d.closePeriod(ctx, key); err != nil {
		return nil, err
	}

	winner, outcome, err := d.settle(ctx, key)
	if err != nil {
		return nil, err
	}

	switch outcome {
	case model.DrawNoEligibleEntries:
		common.PromCounters[common.DropDrawTotal].WithLabelValues(string(outcome)).Inc()
		xcontext.Logger(ctx).Infof("No eligible entries in %s", key)
		return &model.RunDrawResponse{Outcome: outcome}, nil

	case model.DrawAlreadySettled:
		return d.alreadySettled(ctx, winner)
	}

	xcontext.Logger(ctx).Infof("Winner of %s is %s (%s) with entry %s (seed %s), payout %s, fee %s",
		key, winner.UserUID, winner.WinnerWallet, winner.EntryID, winner.Seed, winner.WinnerAmount, winner.FeeAmount)

	payoutErr := d.issuePayouts(ctx, key)
	if errorx.CodeOf(payoutErr) == errorx.InvariantViolation {
		return nil, payoutErr
	}

	payouts, err := d.getPayouts(ctx, key)
	if err != nil {
		payouts = nil
	}

	settlement := convertSettlement(winner, payouts)
	resp := &model.RunDrawResponse{Outcome: model.DrawSettled, Settlement: settlement}
	if payoutErr != nil {
		xcontext.Logger(ctx).Warnf("Payout of %s is pending: %v", key, payoutErr)
		resp.Outcome = model.DrawPayoutPending
		resp.PayoutError = payoutErr.Error()
	}

	common.PromCounters[common.DropDrawTotal].WithLabelValues(string(resp.Outcome)).Inc()
	return resp, nil
}

// getWinner returns the settlement of the period, or nil if it has none.
func (d *dropDomain) getWinner(ctx context.Context, key string) (*entity.Winner, error) {
	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()

	winner, err := d.winnerRepo.GetByPeriod(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		xcontext.Logger(ctx).Errorf("Cannot get settlement of %s: %v", key, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot read the settlement of %s", key)
	}

	return winner, nil
}

func (d *dropDomain) getPayouts(ctx context.Context, key string) ([]entity.Payout, error) {
	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()

	payouts, err := d.payoutRepo.GetByPeriod(ctx, key)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get payouts of %s: %v", key, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot read the payouts of %s", key)
	}

	return payouts, nil
}

func (d *dropDomain) alreadySettled(ctx context.Context, winner *entity.Winner) (*model.RunDrawResponse, error) {
	payouts, err := d.getPayouts(ctx, winner.PeriodKey)
	if err != nil {
		return nil, err
	}

	common.PromCounters[common.DropDrawTotal].WithLabelValues(string(model.DrawAlreadySettled)).Inc()
	return &model.RunDrawResponse{
		Outcome:    model.DrawAlreadySettled,
		Settlement: convertSettlement(winner, payouts),
	}, nil
}

// closePeriod stops the intake of the period, so its pot cannot change while
// it is drawn or archived.
func (d *dropDomain) closePeriod(ctx context.Context, key string) error {
	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()

	if err := d.periodRepo.Upsert(ctx, key); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot create period %s: %v", key, err)
		return errorx.New(errorx.StoreUnavailable, "Cannot close period %s", key)
	}

	if err := d.periodRepo.Close(ctx, key); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot close period %s: %v", key, err)
		return errorx.New(errorx.StoreUnavailable, "Cannot close period %s", key)
	}

	return nil
}

// settle selects the winner and writes the settlement with its payout
// instructions in a single transaction.
func (d *dropDomain) settle(ctx context.Context, key string) (*entity.Winner, model.DrawOutcome, error) {
	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()

	txCtx := xcontext.WithDBTransaction(ctx)
	defer xcontext.WithRollbackDBTransaction(txCtx)

	entries, err := d.entryRepo.GetByPeriod(txCtx, key)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get entries of %s: %v", key, err)
		return nil, "", errorx.New(errorx.StoreUnavailable, "Cannot read the entries of %s", key)
	}

	if len(entries) == 0 {
		return nil, model.DrawNoEligibleEntries, nil
	}

	pot, err := d.potAggregator.ComputePot(txCtx, key)
	if err != nil {
		return nil, "", err
	}

	index, seed, err := selectIndex(len(entries), d.randUint64)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot draw a random seed: %v", err)
		return nil, "", errorx.New(errorx.Internal, "Cannot draw a random seed")
	}

	wallet, err := d.winnerWallet(txCtx, &entries[index])
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get wallet of %s: %v", entries[index].UserUID, err)
		return nil, "", errorx.New(errorx.StoreUnavailable, "Cannot read the winner of %s", key)
	}

	cfg := xcontext.Configs(ctx).Drop
	payoutAmount, feeAmount := splitPot(pot, cfg.WinnerShare, cfg.Precision)
	winner := &entity.Winner{
		Base:           entity.Base{ID: uuid.NewString()},
		PeriodKey:      key,
		UserUID:        entries[index].UserUID,
		EntryID:        entries[index].ID,
		WinnerWallet:   wallet,
		EntryCount:     len(entries),
		SnapshotDigest: snapshotDigest(entries),
		Seed:           strconv.FormatUint(seed, 10),
		PotTotal:       pot,
		WinnerAmount:   payoutAmount,
		FeeAmount:      feeAmount,
	}

	created, err := d.winnerRepo.Create(txCtx, winner)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot create settlement of %s: %v", key, err)
		return nil, "", errorx.New(errorx.StoreUnavailable, "Cannot write the settlement of %s", key)
	}

	if !created {
		// Another run settled the period between the guard and the insert.
		xcontext.WithRollbackDBTransaction(txCtx)
		existing, err := d.winnerRepo.GetByPeriod(ctx, key)
		if err != nil {
			xcontext.Logger(ctx).Errorf("Cannot get settlement of %s: %v", key, err)
			return nil, "", errorx.New(errorx.StoreUnavailable, "Cannot read the settlement of %s", key)
		}

		return existing, model.DrawAlreadySettled, nil
	}

	payouts := []entity.Payout{}
	for _, p := range []struct {
		kind   entity.PayoutKind
		uid    string
		amount decimal.Decimal
	}{
		{entity.PayoutWinner, winner.UserUID, payoutAmount},
		{entity.PayoutFee, cfg.PlatformUID, feeAmount},
	} {
		if !p.amount.IsPositive() {
			continue
		}

		payouts = append(payouts, entity.Payout{
			Base:           entity.Base{ID: uuid.NewString()},
			WinnerID:       winner.ID,
			PeriodKey:      key,
			Kind:           p.kind,
			DestinationUID: p.uid,
			Amount:         p.amount,
			Status:         entity.PayoutPending,
		})
	}

	if len(payouts) > 0 {
		if err := d.payoutRepo.CreateMany(txCtx, payouts); err != nil {
			xcontext.Logger(ctx).Errorf("Cannot create payouts of %s: %v", key, err)
			return nil, "", errorx.New(errorx.StoreUnavailable, "Cannot write the payouts of %s", key)
		}
	}

	err = d.periodRepo.UpdateStatus(txCtx, key, entity.PeriodSettled, entity.PeriodOpen, entity.PeriodClosed)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		xcontext.Logger(ctx).Errorf("Cannot mark period %s as settled: %v", key, err)
		return nil, "", errorx.New(errorx.StoreUnavailable, "Cannot write the settlement of %s", key)
	}

	if err := xcontext.CommitDBTransaction(txCtx); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot commit settlement of %s: %v", key, err)
		return nil, "", errorx.New(errorx.StoreUnavailable, "Cannot write the settlement of %s", key)
	}

	publishSettlementEvent(ctx, d.publisher, model.SettlementEvent{
		Type:       "settled",
		PeriodKey:  key,
		Settlement: convertSettlement(winner, payouts),
	})

	return winner, model.DrawSettled, nil
}

// winnerWallet returns the wallet recorded with the entry, or the wallet the
// user registered since.
func (d *dropDomain) winnerWallet(ctx context.Context, entry *entity.Entry) (string, error) {
	if entry.Wallet != "" {
		return entry.Wallet, nil
	}

	user, err := d.userRepo.GetByUID(ctx, entry.UserUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}

		return "", err
	}

	return user.Wallet, nil
}

// verifySettlement checks that the period has exactly one settlement and that
// its payouts add up to the pot. A violation halts the period.
func (d *dropDomain) verifySettlement(ctx context.Context, key string) error {
	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()

	count, err := d.winnerRepo.CountByPeriod(ctx, key)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot count settlements of %s: %v", key, err)
		return errorx.New(errorx.StoreUnavailable, "Cannot read the settlement of %s", key)
	}

	if count != 1 {
		return d.halt(ctx, key, "period has %d settlements", count)
	}

	winner, err := d.winnerRepo.GetByPeriod(ctx, key)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get settlement of %s: %v", key, err)
		return errorx.New(errorx.StoreUnavailable, "Cannot read the settlement of %s", key)
	}

	payouts, err := d.payoutRepo.GetByPeriod(ctx, key)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get payouts of %s: %v", key, err)
		return errorx.New(errorx.StoreUnavailable, "Cannot read the payouts of %s", key)
	}

	total := decimal.Zero
	for _, p := range payouts {
		total = total.Add(p.Amount)
	}

	if !total.Equal(winner.PotTotal) {
		return d.halt(ctx, key, "payouts add up to %s but the pot is %s", total, winner.PotTotal)
	}

	return nil
}

func (d *dropDomain) halt(ctx context.Context, key, format string, args ...any) error {
	err := errorx.New(errorx.InvariantViolation, format, args...)
	xcontext.Logger(ctx).Errorf("Halt period %s: %v", key, err)

	storeCtx, cancel := withStoreTimeout(ctx)
	defer cancel()

	err2 := d.periodRepo.UpdateStatus(storeCtx, key, entity.PeriodHalted,
		entity.PeriodOpen, entity.PeriodClosed, entity.PeriodSettled, entity.PeriodArchived)
	if err2 != nil && !errors.Is(err2, gorm.ErrRecordNotFound) {
		xcontext.Logger(ctx).Errorf("Cannot mark period %s as halted: %v", key, err2)
	}

	publishSettlementEvent(ctx, d.publisher, model.SettlementEvent{Type: "halted", PeriodKey: key})
	return err
}

// payableOf verifies the settlement of the period and returns its payouts,
// after releasing the ones whose worker was interrupted.
func (d *dropDomain) payableOf(ctx context.Context, key string) ([]entity.Payout, error) {
	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()

	period, err := d.periodRepo.Get(ctx, key)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get period %s: %v", key, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot read period %s", key)
	}

	if period.Status == entity.PeriodHalted {
		return nil, errorx.New(errorx.InvariantViolation, "Period %s is halted", key)
	}

	if err := d.verifySettlement(ctx, key); err != nil {
		return nil, err
	}

	if err := d.payoutRepo.ExpireSending(ctx, key, d.now().Add(-staleSendingAfter)); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot expire sending payouts of %s: %v", key, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot read the payouts of %s", key)
	}

	return d.getPayouts(ctx, key)
}

// issuePayouts sends every payout of the period which is not sent yet. It
// returns the first payout error, after trying all of them.
func (d *dropDomain) issuePayouts(ctx context.Context, key string) error {
	payouts, err := d.payableOf(ctx, key)
	if err != nil {
		return err
	}

	var incomplete []pi.Payment
	var incompleteErr error
	incompleteLoaded := false

	var firstErr error
	for i := range payouts {
		payout := &payouts[i]
		var err error
		switch payout.Status {
		case entity.PayoutSent:
			continue

		case entity.PayoutSending, entity.PayoutCompleting:
			err = errorx.New(errorx.PayoutSendUnknown, "The %s payout of %s is being sent", payout.Kind, key)

		case entity.PayoutCreated:
			err = d.completePayout(ctx, payout)

		case entity.PayoutUnknown:
			if !incompleteLoaded {
				incomplete, incompleteErr = d.piClient.GetIncompleteServerPayments(ctx)
				incompleteLoaded = true
			}

			if incompleteErr != nil {
				xcontext.Logger(ctx).Warnf("Cannot get incomplete payments: %v", incompleteErr)
				err = errorx.New(errorx.PayoutSendUnknown,
					"Cannot reconcile the %s payout of %s", payout.Kind, key)
				break
			}

			err = d.reconcilePayout(ctx, payout, incomplete)

		default:
			err = d.sendPayout(ctx, payout, entity.PayoutPending, entity.PayoutFailed)
		}

		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// claimPayout moves the payout to status. It reports false if another worker
// claimed it first.
func (d *dropDomain) claimPayout(
	ctx context.Context, payout *entity.Payout, status entity.PayoutStatus, from ...entity.PayoutStatus,
) (bool, error) {
	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()

	if err := d.payoutRepo.Claim(ctx, payout.ID, status, from...); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}

		xcontext.Logger(ctx).Errorf("Cannot claim payout %s: %v", payout.ID, err)
		return false, errorx.New(errorx.StoreUnavailable, "Cannot update payout %s", payout.ID)
	}

	payout.Status = status
	return true, nil
}

// releasePayout moves a claimed payout to status after a failed step and
// returns the payout error.
func (d *dropDomain) releasePayout(
	ctx context.Context, payout *entity.Payout, status entity.PayoutStatus, code errorx.Code, cause error,
) error {
	xcontext.Logger(ctx).Warnf("Cannot send payout %s: %v", payout.ID, cause)

	storeCtx, cancel := withStoreTimeout(ctx)
	defer cancel()
	if err := d.payoutRepo.MarkUnsent(storeCtx, payout.ID, payout.Status, status, cause.Error()); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot mark payout %s as %s: %v", payout.ID, status, err)
	}

	common.PromCounters[common.DropPayoutTotal].WithLabelValues(string(payout.Kind), string(status)).Inc()
	payout.Status = status
	payout.LastError = cause.Error()
	d.publishPayout(ctx, payout)

	return errorx.New(code, "Cannot send the %s payout of %s", payout.Kind, payout.PeriodKey)
}

func (d *dropDomain) publishPayout(ctx context.Context, payout *entity.Payout) {
	p := convertPayout(payout)
	publishSettlementEvent(ctx, d.publisher, model.SettlementEvent{
		Type:      "payout_" + string(payout.Status),
		PeriodKey: payout.PeriodKey,
		Payout:    &p,
	})
}

// reconcilePayout resolves a payout whose creation has an unknown result. If
// the provider holds a payment created for this payout, that payment is
// completed. Otherwise it was never created and is sent again.
func (d *dropDomain) reconcilePayout(ctx context.Context, payout *entity.Payout, incomplete []pi.Payment) error {
	for _, payment := range incomplete {
		if payment.MetadataString("payout_id") != payout.ID {
			continue
		}

		claimed, err := d.claimPayout(ctx, payout, entity.PayoutSending, entity.PayoutUnknown)
		if err != nil || !claimed {
			return err
		}

		xcontext.Logger(ctx).Infof("Payout %s was created as payment %s", payout.ID, payment.Identifier)
		if err := d.recordCreated(ctx, payout, &payment); err != nil {
			return err
		}

		return d.completePayout(ctx, payout)
	}

	return d.sendPayout(ctx, payout, entity.PayoutUnknown)
}

func (d *dropDomain) sendPayout(ctx context.Context, payout *entity.Payout, from ...entity.PayoutStatus) error {
	claimed, err := d.claimPayout(ctx, payout, entity.PayoutSending, from...)
	if err != nil || !claimed {
		return err
	}

	memo := winnerMemo
	if payout.Kind == entity.PayoutFee {
		memo = feeMemo
	}

	payment, err := d.piClient.CreatePayment(ctx, pi.PaymentArgs{
		Amount: payout.Amount,
		Memo:   memo,
		UID:    payout.DestinationUID,
		Metadata: structs.Map(model.PayoutMetadata{
			PayoutID:  payout.ID,
			PeriodKey: payout.PeriodKey,
			Kind:      string(payout.Kind),
		}),
	})
	if err != nil {
		if pi.IsRejected(err) {
			return d.releasePayout(ctx, payout, entity.PayoutFailed, errorx.PayoutSendFailed, err)
		}

		return d.releasePayout(ctx, payout, entity.PayoutUnknown, errorx.PayoutSendUnknown, err)
	}

	if err := d.recordCreated(ctx, payout, payment); err != nil {
		return err
	}

	return d.completePayout(ctx, payout)
}

// recordCreated stores the provider payment of a payout being sent.
func (d *dropDomain) recordCreated(ctx context.Context, payout *entity.Payout, payment *pi.Payment) error {
	storeCtx, cancel := withStoreTimeout(ctx)
	defer cancel()

	if err := d.payoutRepo.MarkCreated(storeCtx, payout.ID, payment.Identifier, payment.ToAddress); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot record payment %s of payout %s: %v", payment.Identifier, payout.ID, err)
		return errorx.New(errorx.PayoutSendUnknown, "Cannot record the %s payout of %s", payout.Kind, payout.PeriodKey)
	}

	payout.Status = entity.PayoutCreated
	payout.ProviderPaymentID = payment.Identifier
	payout.DestinationAddress = payment.ToAddress
	payout.LastError = ""
	d.publishPayout(ctx, payout)
	return nil
}

// completePayout submits the blockchain transaction of a created payment and
// completes it at the provider. Every step is checked against the provider
// first, so a retry never submits a payment twice.
func (d *dropDomain) completePayout(ctx context.Context, payout *entity.Payout) error {
	claimed, err := d.claimPayout(ctx, payout, entity.PayoutCompleting, entity.PayoutCreated)
	if err != nil || !claimed {
		return err
	}

	payment, err := d.piClient.GetPayment(ctx, payout.ProviderPaymentID)
	if err != nil {
		return d.releasePayout(ctx, payout, entity.PayoutCreated, errorx.PayoutSendUnknown, err)
	}

	if payment.Status.Cancelled || payment.Status.UserCancelled {
		// A new payment is created on the next attempt.
		return d.releasePayout(ctx, payout, entity.PayoutFailed, errorx.PayoutSendFailed,
			fmt.Errorf("payment %s was cancelled", payment.Identifier))
	}

	txid := ""
	if payment.Transaction != nil {
		txid = payment.Transaction.TxID
	}

	if txid == "" {
		txid, err = d.signer.SubmitPayment(ctx, payment)
		if err != nil {
			code := errorx.PayoutSendUnknown
			if pi.IsRejected(err) {
				code = errorx.PayoutSendFailed
			}

			return d.releasePayout(ctx, payout, entity.PayoutCreated, code, err)
		}
	}

	if !payment.Status.DeveloperCompleted {
		if _, err := d.piClient.CompletePayment(ctx, payment.Identifier, txid); err != nil {
			return d.releasePayout(ctx, payout, entity.PayoutCreated, errorx.PayoutSendUnknown, err)
		}
	}

	return d.markPayoutSent(ctx, payout, txid)
}

// markPayoutSent records a completed payout together with its ledger
// transaction.
func (d *dropDomain) markPayoutSent(ctx context.Context, payout *entity.Payout, txid string) error {
	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()

	ctx = xcontext.WithDBTransaction(ctx)
	defer xcontext.WithRollbackDBTransaction(ctx)

	if err := d.payoutRepo.MarkSent(ctx, payout.ID, txid); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot mark payout %s as sent: %v", payout.ID, err)
		return errorx.New(errorx.StoreUnavailable, "Cannot update payout %s", payout.ID)
	}

	_, err := d.transactionRepo.Create(ctx, &entity.Transaction{
		Base:      entity.Base{ID: uuid.NewString()},
		UserUID:   payout.DestinationUID,
		PeriodKey: payout.PeriodKey,
		Type:      entity.TransactionPayout,
		Amount:    payout.Amount,
		PaymentID: sqlString(payout.ProviderPaymentID),
		TxID:      txid,
	})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot record payout transaction %s: %v", payout.ID, err)
		return errorx.New(errorx.StoreUnavailable, "Cannot update payout %s", payout.ID)
	}

	if err := xcontext.CommitDBTransaction(ctx); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot commit payout %s: %v", payout.ID, err)
		return errorx.New(errorx.StoreUnavailable, "Cannot update payout %s", payout.ID)
	}

	common.PromCounters[common.DropPayoutTotal].WithLabelValues(string(payout.Kind), string(entity.PayoutSent)).Inc()
	payout.Status = entity.PayoutSent
	payout.TxID = txid
	d.publishPayout(ctx, payout)

	return nil
}

func (d *dropDomain) GetSettlement(
	ctx context.Context, req *model.GetSettlementRequest,
) (*model.GetSettlementResponse, error) {
	key, err := d.endedPeriodKey(ctx, req.PeriodKey)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()

	period, err := d.periodRepo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.NotFound, "Not found period %s", key)
		}

		xcontext.Logger(ctx).Errorf("Cannot get period %s: %v", key, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot read period %s", key)
	}

	resp := &model.GetSettlementResponse{PeriodStatus: string(period.Status)}
	winner, err := d.getWinner(ctx, key)
	if err != nil || winner == nil {
		return resp, err
	}

	payouts, err := d.getPayouts(ctx, key)
	if err != nil {
		return nil, err
	}

	resp.Settlement = convertSettlement(winner, payouts)
	return resp, nil
}

func (d *dropDomain) RetryPayouts(
	ctx context.Context, req *model.RetryPayoutsRequest,
) (*model.RetryPayoutsResponse, error) {
	key, err := d.endedPeriodKey(ctx, req.PeriodKey)
	if err != nil {
		return nil, err
	}

	winner, err := d.getWinner(ctx, key)
	if err != nil {
		return nil, err
	}

	if winner == nil {
		return nil, errorx.New(errorx.NotFound, "Period %s is not settled", key)
	}

	if err := d.issuePayouts(ctx, key); err != nil {
		return nil, err
	}

	payouts, err := d.getPayouts(ctx, key)
	if err != nil {
		return nil, err
	}

	return &model.RetryPayoutsResponse{Payouts: convertPayouts(payouts)}, nil
}

func (d *dropDomain) RetryAllPayouts(ctx context.Context) error {
	storeCtx, cancel := withStoreTimeout(ctx)
	keys, err := d.payoutRepo.GetUnsentPeriodKeys(storeCtx)
	cancel()
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get periods with unsent payouts: %v", err)
		return errorx.New(errorx.StoreUnavailable, "Cannot read the unsent payouts")
	}

	var firstErr error
	for _, key := range keys {
		if err := d.issuePayouts(ctx, key); err != nil {
			xcontext.Logger(ctx).Warnf("Payouts of %s are still pending: %v", key, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

func (d *dropDomain) ResetPeriod(
	ctx context.Context, req *model.ResetPeriodRequest,
) (*model.ResetPeriodResponse, error) {
	key, err := d.endedPeriodKey(ctx, req.PeriodKey)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()

	winner, err := d.getWinner(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := d.closePeriod(ctx, key); err != nil {
		return nil, err
	}

	if winner == nil {
		count, err := d.entryRepo.CountByPeriod(ctx, key)
		if err != nil {
			xcontext.Logger(ctx).Errorf("Cannot count entries of %s: %v", key, err)
			return nil, errorx.New(errorx.StoreUnavailable, "Cannot read the entries of %s", key)
		}

		if count > 0 {
			return nil, errorx.New(errorx.Unavailable, "Period %s has entries but no settlement", key)
		}
	}

	var total decimal.Decimal
	if winner != nil {
		total = winner.PotTotal
	} else {
		total, err = d.potAggregator.ComputePot(ctx, key)
		if err != nil {
			return nil, err
		}
	}

	ctx = xcontext.WithDBTransaction(ctx)
	defer xcontext.WithRollbackDBTransaction(ctx)

	history := &entity.PotHistory{
		Base:      entity.Base{ID: uuid.NewString()},
		PeriodKey: key,
		Total:     total,
	}
	created, err := d.potHistoryRepo.Create(ctx, history)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot archive pot of %s: %v", key, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot archive the pot of %s", key)
	}

	if !created {
		// The period was reset before, together with its archive.
		history, err = d.potHistoryRepo.GetByPeriod(ctx, key)
		if err != nil {
			xcontext.Logger(ctx).Errorf("Cannot get pot history of %s: %v", key, err)
			return nil, errorx.New(errorx.StoreUnavailable, "Cannot archive the pot of %s", key)
		}

		return &model.ResetPeriodResponse{PeriodKey: key, ArchivedTotal: history.Total.String()}, nil
	}

	if err := d.entryRepo.DeleteByPeriod(ctx, key); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot delete entries of %s: %v", key, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot delete the entries of %s", key)
	}

	// Users who already claimed in the running period keep their flag.
	if err := d.userRepo.ResetClaimedToday(ctx, currentPeriodKey(ctx, d.now())); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot reset free entry flags: %v", err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot reset free entry flags")
	}

	err = d.periodRepo.UpdateStatus(ctx, key, entity.PeriodArchived, entity.PeriodClosed, entity.PeriodSettled)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		xcontext.Logger(ctx).Errorf("Cannot archive period %s: %v", key, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot archive period %s", key)
	}

	if err := xcontext.CommitDBTransaction(ctx); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot commit reset of %s: %v", key, err)
		return nil, errorx.New(errorx.StoreUnavailable, "Cannot reset period %s", key)
	}

	xcontext.Logger(ctx).Infof("Period %s reset, pot archived: %s", key, history.Total)
	return &model.ResetPeriodResponse{PeriodKey: key, ArchivedTotal: history.Total.String()}, nil
}
