package domain

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/internal/model"
	"github.com/sevendrop/backend/internal/repository"
	"github.com/sevendrop/backend/pkg/errorx"
	"github.com/sevendrop/backend/pkg/pi"
	"github.com/sevendrop/backend/pkg/xcontext"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func seedThreeUsers(t *testing.T, ctx context.Context) []entity.Entry {
	return seedPeriod(t, ctx, endedKey,
		seedEntry{uid: "alice", amount: "500", wallet: "GALICE"},
		seedEntry{uid: "bob", amount: "540", wallet: "GBOB"},
		seedEntry{uid: "carol", amount: "500", wallet: "GCAROL"},
	)
}

func payoutOf(s *model.Settlement, kind entity.PayoutKind) model.Payout {
	for _, p := range s.Payouts {
		if p.Kind == string(kind) {
			return p
		}
	}

	return model.Payout{}
}

func Test_dropDomain_RunDraw(t *testing.T) {
	f := newDropFixture(4)
	entries := seedThreeUsers(t, f.ctx)

	resp, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	require.Equal(t, model.DrawSettled, resp.Outcome)
	require.Empty(t, resp.PayoutError)

	s := resp.Settlement
	require.Equal(t, "bob", s.WinnerUID)
	require.Equal(t, "GBOB", s.WinnerWallet)
	require.Equal(t, entries[1].ID, s.EntryID)
	require.Equal(t, 3, s.EntryCount)
	require.Equal(t, "4", s.Seed)
	require.Equal(t, snapshotDigest(entries), s.SnapshotDigest)
	requireDecimal(t, "1540", s.PotTotal)
	requireDecimal(t, "1463", s.WinnerAmount)
	requireDecimal(t, "77", s.FeeAmount)

	require.Len(t, s.Payouts, 2)
	winner := payoutOf(s, entity.PayoutWinner)
	require.Equal(t, "bob", winner.DestinationUID)
	require.Equal(t, string(entity.PayoutSent), winner.Status)
	require.NotEmpty(t, winner.ProviderPaymentID)
	require.Equal(t, "Gbob", winner.ToAddress)
	require.Equal(t, "tx-"+winner.ProviderPaymentID, winner.TxID)
	fee := payoutOf(s, entity.PayoutFee)
	require.Equal(t, "platform", fee.DestinationUID)
	require.Equal(t, string(entity.PayoutSent), fee.Status)

	require.Len(t, f.pi.Created, 2)
	for _, args := range f.pi.Created {
		switch args.UID {
		case "bob":
			require.Equal(t, winnerMemo, args.Memo)
			require.Equal(t, winner.ID, args.Metadata["payout_id"])
		case "platform":
			require.Equal(t, feeMemo, args.Memo)
		default:
			t.Fatalf("unexpected payout to %s", args.UID)
		}
	}

	// Every payment is submitted and completed once.
	require.Len(t, f.signer.Submitted, 2)
	require.ElementsMatch(t, f.signer.Submitted, []string{winner.ProviderPaymentID, fee.ProviderPaymentID})
	require.ElementsMatch(t, f.pi.Completed, []string{winner.TxID, fee.TxID})

	require.Equal(t, entity.PeriodSettled, periodStatus(t, f.ctx, endedKey))

	payoutTxs, err := repository.NewTransactionRepository().GetByPeriodAndType(f.ctx, endedKey, entity.TransactionPayout)
	require.NoError(t, err)
	require.Len(t, payoutTxs, 2)

	// The pot itself is not changed by paying out.
	pot, err := f.domain.GetPot(f.ctx, &model.GetPotRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	requireDecimal(t, "1540", pot.Pot)
}

func Test_dropDomain_RunDraw_AlreadySettled(t *testing.T) {
	f := newDropFixture(4)
	seedThreeUsers(t, f.ctx)

	first, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)

	f.seeds = []uint64{0}
	second, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	require.Equal(t, model.DrawAlreadySettled, second.Outcome)
	require.Equal(t, first.Settlement.WinnerUID, second.Settlement.WinnerUID)
	require.Equal(t, first.Settlement.Seed, second.Settlement.Seed)

	require.Equal(t, 1, f.draws)
	require.Len(t, f.pi.Created, 2)

	count, err := repository.NewWinnerRepository().CountByPeriod(f.ctx, endedKey)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func Test_dropDomain_RunDraw_NoEligibleEntries(t *testing.T) {
	f := newDropFixture(4)

	resp, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	require.Equal(t, model.DrawNoEligibleEntries, resp.Outcome)
	require.Nil(t, resp.Settlement)
	require.Empty(t, f.pi.Created)
	require.Equal(t, 0, f.draws)

	_, err = repository.NewWinnerRepository().GetByPeriod(f.ctx, endedKey)
	require.Error(t, err)
	require.Equal(t, entity.PeriodClosed, periodStatus(t, f.ctx, endedKey))
}

func Test_dropDomain_RunDraw_DefaultsToLastEndedPeriod(t *testing.T) {
	f := newDropFixture(4)
	seedThreeUsers(t, f.ctx)

	resp, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{})
	require.NoError(t, err)
	require.Equal(t, model.DrawSettled, resp.Outcome)
	require.Equal(t, endedKey, resp.Settlement.PeriodKey)
}

func Test_dropDomain_RunDraw_InvalidPeriod(t *testing.T) {
	f := newDropFixture(4)

	tests := []struct {
		name string
		key  string
	}{
		{name: "current period", key: currentKey},
		{name: "future period", key: "2024-03-11"},
		{name: "malformed", key: "yesterday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: tt.key})
			require.Error(t, err)
			require.Equal(t, errorx.BadRequest, errorx.CodeOf(err))
		})
	}
}

func Test_dropDomain_RunDraw_ZeroPot(t *testing.T) {
	f := newDropFixture(0)
	seedPeriod(t, f.ctx, endedKey, seedEntry{uid: "alice", amount: "0"})

	resp, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	require.Equal(t, model.DrawSettled, resp.Outcome)
	require.Equal(t, "alice", resp.Settlement.WinnerUID)
	require.Empty(t, resp.Settlement.Payouts)
	require.Empty(t, f.pi.Created)
}

func Test_dropDomain_RunDraw_FractionalSplit(t *testing.T) {
	f := newDropFixture(0)
	seedPeriod(t, f.ctx, endedKey, seedEntry{uid: "alice", amount: "10.01"})

	resp, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	requireDecimal(t, "9.5095", resp.Settlement.WinnerAmount)
	requireDecimal(t, "0.5005", resp.Settlement.FeeAmount)
}

func Test_dropDomain_RunDraw_PayoutRejected(t *testing.T) {
	f := newDropFixture(4)
	seedThreeUsers(t, f.ctx)

	f.pi.CreatePaymentFunc = func(ctx context.Context, args pi.PaymentArgs) (*pi.Payment, error) {
		return nil, &pi.Error{StatusCode: 400, Body: "insufficient_balance"}
	}

	resp, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	require.Equal(t, model.DrawPayoutPending, resp.Outcome)
	require.NotEmpty(t, resp.PayoutError)
	require.Equal(t, "bob", resp.Settlement.WinnerUID)
	for _, p := range resp.Settlement.Payouts {
		require.Equal(t, string(entity.PayoutFailed), p.Status)
		require.Equal(t, 1, p.Attempts)
	}

	// Retrying sends the same settlement without drawing again.
	f.pi.CreatePaymentFunc = nil
	retry, err := f.domain.RetryPayouts(f.ctx, &model.RetryPayoutsRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	require.Len(t, retry.Payouts, 2)
	for _, p := range retry.Payouts {
		require.Equal(t, string(entity.PayoutSent), p.Status)
		require.Equal(t, 2, p.Attempts)
	}

	require.Equal(t, 1, f.draws)
	require.Len(t, f.pi.Created, 4)

	settlement, err := f.domain.GetSettlement(f.ctx, &model.GetSettlementRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	require.Equal(t, "bob", settlement.Settlement.WinnerUID)
	require.Equal(t, string(entity.PeriodSettled), settlement.PeriodStatus)
}

func Test_dropDomain_RetryPayouts_ReconcilesUnknown(t *testing.T) {
	f := newDropFixture(4)
	seedThreeUsers(t, f.ctx)

	f.pi.CreatePaymentFunc = func(ctx context.Context, args pi.PaymentArgs) (*pi.Payment, error) {
		if args.Memo == winnerMemo {
			return nil, errors.New("connection reset")
		}

		return &pi.Payment{Identifier: uuid.NewString()}, nil
	}

	resp, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	require.Equal(t, model.DrawPayoutPending, resp.Outcome)

	winner := payoutOf(resp.Settlement, entity.PayoutWinner)
	require.Equal(t, string(entity.PayoutUnknown), winner.Status)
	require.Equal(t, string(entity.PayoutSent), payoutOf(resp.Settlement, entity.PayoutFee).Status)

	// The provider did create the payment before the connection dropped.
	f.pi.CreatePaymentFunc = nil
	f.pi.GetIncompleteServerPaymentsFunc = func(ctx context.Context) ([]pi.Payment, error) {
		return []pi.Payment{{
			Identifier: "a2u-1",
			ToAddress:  "GBOB",
			Metadata:   map[string]any{"payout_id": winner.ID},
		}}, nil
	}

	created := len(f.pi.Created)
	retry, err := f.domain.RetryPayouts(f.ctx, &model.RetryPayoutsRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	require.Len(t, f.pi.Created, created)

	payout, err := repository.NewPayoutRepository().GetByID(f.ctx, winner.ID)
	require.NoError(t, err)
	require.Equal(t, entity.PayoutSent, payout.Status)
	require.Equal(t, "a2u-1", payout.ProviderPaymentID)
	require.Equal(t, "GBOB", payout.DestinationAddress)
	require.Len(t, retry.Payouts, 2)
}

func Test_dropDomain_RetryPayouts_ResendsUnknownNotAtProvider(t *testing.T) {
	f := newDropFixture(4)
	seedThreeUsers(t, f.ctx)

	f.pi.CreatePaymentFunc = func(ctx context.Context, args pi.PaymentArgs) (*pi.Payment, error) {
		return nil, &pi.Error{StatusCode: 503}
	}

	resp, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	require.Equal(t, model.DrawPayoutPending, resp.Outcome)
	for _, p := range resp.Settlement.Payouts {
		require.Equal(t, string(entity.PayoutUnknown), p.Status)
	}

	f.pi.CreatePaymentFunc = nil
	retry, err := f.domain.RetryPayouts(f.ctx, &model.RetryPayoutsRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	for _, p := range retry.Payouts {
		require.Equal(t, string(entity.PayoutSent), p.Status)
	}

	require.Len(t, f.pi.Created, 4)
}

func Test_dropDomain_RetryPayouts_NotSettled(t *testing.T) {
	f := newDropFixture(4)

	_, err := f.domain.RetryPayouts(f.ctx, &model.RetryPayoutsRequest{PeriodKey: endedKey})
	require.Error(t, err)
	require.Equal(t, errorx.NotFound, errorx.CodeOf(err))
}

func Test_dropDomain_InvariantViolationHalts(t *testing.T) {
	f := newDropFixture(4)
	seedThreeUsers(t, f.ctx)

	f.pi.CreatePaymentFunc = func(ctx context.Context, args pi.PaymentArgs) (*pi.Payment, error) {
		return nil, &pi.Error{StatusCode: 400}
	}

	_, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)

	err = xcontext.DB(f.ctx).Model(&entity.Payout{}).
		Where("period_key=? AND kind=?", endedKey, entity.PayoutFee).
		Update("amount", "100").Error
	require.NoError(t, err)

	f.pi.CreatePaymentFunc = nil
	created := len(f.pi.Created)
	_, err = f.domain.RetryPayouts(f.ctx, &model.RetryPayoutsRequest{PeriodKey: endedKey})
	require.Error(t, err)
	require.Equal(t, errorx.InvariantViolation, errorx.CodeOf(err))
	require.Equal(t, entity.PeriodHalted, periodStatus(t, f.ctx, endedKey))
	require.Len(t, f.pi.Created, created)

	// A halted period stays halted, even once the data looks right again.
	err = xcontext.DB(f.ctx).Model(&entity.Payout{}).
		Where("period_key=? AND kind=?", endedKey, entity.PayoutFee).
		Update("amount", "77").Error
	require.NoError(t, err)

	_, err = f.domain.RetryPayouts(f.ctx, &model.RetryPayoutsRequest{PeriodKey: endedKey})
	require.Equal(t, errorx.InvariantViolation, errorx.CodeOf(err))
	require.Len(t, f.pi.Created, created)

	require.Error(t, f.domain.RetryAllPayouts(f.ctx))
}

func Test_dropDomain_RetryAllPayouts(t *testing.T) {
	f := newDropFixture(4)
	seedThreeUsers(t, f.ctx)

	f.pi.CreatePaymentFunc = func(ctx context.Context, args pi.PaymentArgs) (*pi.Payment, error) {
		return nil, &pi.Error{StatusCode: 400}
	}

	_, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)

	f.pi.CreatePaymentFunc = nil
	require.NoError(t, f.domain.RetryAllPayouts(f.ctx))

	keys, err := repository.NewPayoutRepository().GetUnsentPeriodKeys(f.ctx)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func Test_dropDomain_ResetPeriod(t *testing.T) {
	f := newDropFixture(4)
	seedThreeUsers(t, f.ctx)
	require.NoError(t, repository.NewUserRepository().MarkClaimedToday(f.ctx, "alice"))

	_, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)

	resp, err := f.domain.ResetPeriod(f.ctx, &model.ResetPeriodRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	require.Equal(t, endedKey, resp.PeriodKey)
	requireDecimal(t, "1540", resp.ArchivedTotal)

	count, err := repository.NewEntryRepository().CountByPeriod(f.ctx, endedKey)
	require.NoError(t, err)
	require.Zero(t, count)

	user, err := repository.NewUserRepository().GetByUID(f.ctx, "alice")
	require.NoError(t, err)
	require.False(t, user.ClaimedToday)
	require.Equal(t, entity.PeriodArchived, periodStatus(t, f.ctx, endedKey))

	// The settlement survives the purge of the entries.
	settlement, err := f.domain.GetSettlement(f.ctx, &model.GetSettlementRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	require.Equal(t, "bob", settlement.Settlement.WinnerUID)

	// Resetting again changes nothing, not even today's free claims.
	require.NoError(t, repository.NewUserRepository().MarkClaimedToday(f.ctx, "alice"))
	again, err := f.domain.ResetPeriod(f.ctx, &model.ResetPeriodRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	requireDecimal(t, "1540", again.ArchivedTotal)

	user, err = repository.NewUserRepository().GetByUID(f.ctx, "alice")
	require.NoError(t, err)
	require.True(t, user.ClaimedToday)

	history, err := repository.NewPotHistoryRepository().GetByPeriod(f.ctx, endedKey)
	require.NoError(t, err)
	requireDecimal(t, "1540", history.Total.String())
}

func Test_dropDomain_ResetPeriod_RefusesUndrawnEntries(t *testing.T) {
	f := newDropFixture(4)
	seedThreeUsers(t, f.ctx)

	_, err := f.domain.ResetPeriod(f.ctx, &model.ResetPeriodRequest{PeriodKey: endedKey})
	require.Error(t, err)
	require.Equal(t, errorx.Unavailable, errorx.CodeOf(err))

	count, err := repository.NewEntryRepository().CountByPeriod(f.ctx, endedKey)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	_, err = repository.NewPotHistoryRepository().GetByPeriod(f.ctx, endedKey)
	require.Error(t, err)
}

func Test_dropDomain_ResetPeriod_EmptyPeriod(t *testing.T) {
	f := newDropFixture(4)

	_, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)

	resp, err := f.domain.ResetPeriod(f.ctx, &model.ResetPeriodRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	requireDecimal(t, "0", resp.ArchivedTotal)
	require.Equal(t, entity.PeriodArchived, periodStatus(t, f.ctx, endedKey))
}

func Test_dropDomain_ResetPeriod_KeepsHalted(t *testing.T) {
	f := newDropFixture(4)
	seedThreeUsers(t, f.ctx)

	_, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)

	err = repository.NewDropPeriodRepository().UpdateStatus(f.ctx, endedKey, entity.PeriodHalted, entity.PeriodSettled)
	require.NoError(t, err)

	_, err = f.domain.ResetPeriod(f.ctx, &model.ResetPeriodRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	require.Equal(t, entity.PeriodHalted, periodStatus(t, f.ctx, endedKey))
}

func Test_dropDomain_GetSettlement(t *testing.T) {
	f := newDropFixture(4)

	_, err := f.domain.GetSettlement(f.ctx, &model.GetSettlementRequest{PeriodKey: endedKey})
	require.Equal(t, errorx.NotFound, errorx.CodeOf(err))

	_, err = f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)

	resp, err := f.domain.GetSettlement(f.ctx, &model.GetSettlementRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	require.Equal(t, string(entity.PeriodClosed), resp.PeriodStatus)
	require.Nil(t, resp.Settlement)
}

func Test_dropDomain_PublishesSettlement(t *testing.T) {
	f := newDropFixture(4)
	seedThreeUsers(t, f.ctx)

	_, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)

	// One settled event, then a created and a sent event per payout.
	require.Len(t, f.publisher.Published, 5)
	for _, pack := range f.publisher.Published {
		require.Equal(t, []byte(endedKey), pack.Key)
	}
}

func Test_dropDomain_RunDraw_RejectsRedrawnSeed(t *testing.T) {
	f := newDropFixture(math.MaxUint64, 4)
	seedThreeUsers(t, f.ctx)

	resp, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	require.Equal(t, 2, f.draws)
	require.Equal(t, "4", resp.Settlement.Seed)
	require.Equal(t, "bob", resp.Settlement.WinnerUID)
}

func Test_dropDomain_settle_LosesToConcurrentSettlement(t *testing.T) {
	f := newDropFixture(4)
	seedThreeUsers(t, f.ctx)
	require.NoError(t, f.domain.closePeriod(f.ctx, endedKey))

	// Another run settles the period after this one passed its guard.
	existing := &entity.Winner{
		Base:      entity.Base{ID: uuid.NewString()},
		PeriodKey: endedKey,
		UserUID:   "carol",
		Seed:      "2",
		PotTotal:  decimal.NewFromInt(1540),
	}
	created, err := repository.NewWinnerRepository().Create(f.ctx, existing)
	require.NoError(t, err)
	require.True(t, created)

	winner, outcome, err := f.domain.settle(f.ctx, endedKey)
	require.NoError(t, err)
	require.Equal(t, model.DrawAlreadySettled, outcome)
	require.Equal(t, existing.ID, winner.ID)
	require.Equal(t, "carol", winner.UserUID)

	count, err := repository.NewWinnerRepository().CountByPeriod(f.ctx, endedKey)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	payouts, err := repository.NewPayoutRepository().GetByPeriod(f.ctx, endedKey)
	require.NoError(t, err)
	require.Empty(t, payouts)
	require.Empty(t, f.publisher.Published)
}

func Test_dropDomain_RunDraw_WinnerWalletFromUser(t *testing.T) {
	f := newDropFixture(0)
	seedPeriod(t, f.ctx, endedKey, seedEntry{uid: "alice", amount: "10"})
	require.NoError(t, repository.NewUserRepository().SetWallet(f.ctx, "alice", "GALICE"))

	resp, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	require.Equal(t, "GALICE", resp.Settlement.WinnerWallet)

	winner, err := repository.NewWinnerRepository().GetByPeriod(f.ctx, endedKey)
	require.NoError(t, err)
	require.Equal(t, "GALICE", winner.WinnerWallet)
}

func Test_dropDomain_RetryPayouts_CompletesCreatedPayment(t *testing.T) {
	f := newDropFixture(4)
	seedThreeUsers(t, f.ctx)

	f.pi.CompletePaymentFunc = func(ctx context.Context, id, txid string) (*pi.Payment, error) {
		return nil, &pi.Error{StatusCode: 502}
	}

	resp, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	require.Equal(t, model.DrawPayoutPending, resp.Outcome)
	for _, p := range resp.Settlement.Payouts {
		require.Equal(t, string(entity.PayoutCreated), p.Status)
		require.NotEmpty(t, p.ProviderPaymentID)
		require.Empty(t, p.TxID)
	}
	require.Len(t, f.signer.Submitted, 2)

	// The provider already holds the submitted transaction.
	f.pi.CompletePaymentFunc = nil
	f.pi.GetPaymentFunc = func(ctx context.Context, id string) (*pi.Payment, error) {
		return &pi.Payment{Identifier: id, Transaction: &pi.PaymentTransaction{TxID: "tx-" + id}}, nil
	}

	retry, err := f.domain.RetryPayouts(f.ctx, &model.RetryPayoutsRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	for _, p := range retry.Payouts {
		require.Equal(t, string(entity.PayoutSent), p.Status)
		require.Equal(t, "tx-"+p.ProviderPaymentID, p.TxID)
		require.Equal(t, 1, p.Attempts)
	}

	require.Len(t, f.pi.Created, 2)
	require.Len(t, f.signer.Submitted, 2)
	require.Len(t, f.pi.Completed, 4)
}

func Test_dropDomain_RetryPayouts_CancelledPaymentIsResent(t *testing.T) {
	f := newDropFixture(4)
	seedThreeUsers(t, f.ctx)

	f.pi.GetPaymentFunc = func(ctx context.Context, id string) (*pi.Payment, error) {
		return &pi.Payment{Identifier: id, Status: pi.PaymentStatus{Cancelled: true}}, nil
	}

	resp, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	require.Equal(t, model.DrawPayoutPending, resp.Outcome)
	for _, p := range resp.Settlement.Payouts {
		require.Equal(t, string(entity.PayoutFailed), p.Status)
	}
	require.Empty(t, f.signer.Submitted)

	f.pi.GetPaymentFunc = nil
	retry, err := f.domain.RetryPayouts(f.ctx, &model.RetryPayoutsRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	for _, p := range retry.Payouts {
		require.Equal(t, string(entity.PayoutSent), p.Status)
		require.Equal(t, 2, p.Attempts)
	}

	require.Len(t, f.pi.Created, 4)
	require.Len(t, f.signer.Submitted, 2)
}

func Test_dropDomain_StoreTimeout(t *testing.T) {
	f := newDropFixture(4)
	seedThreeUsers(t, f.ctx)

	cfg := xcontext.Configs(f.ctx)
	cfg.Database.Timeout = time.Nanosecond
	ctx := xcontext.WithConfigs(f.ctx, cfg)

	_, err := f.domain.RunDraw(ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.Equal(t, errorx.StoreUnavailable, errorx.CodeOf(err))

	_, err = f.domain.GetSettlement(ctx, &model.GetSettlementRequest{PeriodKey: endedKey})
	require.Equal(t, errorx.StoreUnavailable, errorx.CodeOf(err))

	_, err = f.domain.RetryPayouts(ctx, &model.RetryPayoutsRequest{PeriodKey: endedKey})
	require.Equal(t, errorx.StoreUnavailable, errorx.CodeOf(err))

	_, err = f.domain.ResetPeriod(ctx, &model.ResetPeriodRequest{PeriodKey: endedKey})
	require.Equal(t, errorx.StoreUnavailable, errorx.CodeOf(err))

	require.Equal(t, errorx.StoreUnavailable, errorx.CodeOf(f.domain.RetryAllPayouts(ctx)))

	require.Equal(t, 0, f.draws)
	require.Empty(t, f.pi.Created)
	count, err := repository.NewEntryRepository().CountByPeriod(f.ctx, endedKey)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
}

func Test_dropDomain_ResetPeriod_KeepsCurrentClaims(t *testing.T) {
	f := newDropFixture(4)
	seedThreeUsers(t, f.ctx)

	userRepo := repository.NewUserRepository()
	require.NoError(t, userRepo.MarkClaimedToday(f.ctx, "alice"))
	require.NoError(t, userRepo.MarkClaimedToday(f.ctx, "carol"))

	// carol claimed in the running period before the ended one was reset.
	_, err := repository.NewFreeEntryLogRepository().Create(f.ctx, &entity.FreeEntryLog{
		Base:      entity.Base{ID: uuid.NewString()},
		UserUID:   "carol",
		DeviceFP:  "device-carol",
		PeriodKey: currentKey,
	})
	require.NoError(t, err)

	_, err = f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.NoError(t, err)
	_, err = f.domain.ResetPeriod(f.ctx, &model.ResetPeriodRequest{PeriodKey: endedKey})
	require.NoError(t, err)

	alice, err := userRepo.GetByUID(f.ctx, "alice")
	require.NoError(t, err)
	require.False(t, alice.ClaimedToday)

	carol, err := userRepo.GetByUID(f.ctx, "carol")
	require.NoError(t, err)
	require.True(t, carol.ClaimedToday)
}
