package domain

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/internal/repository"
	"github.com/sevendrop/backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// testNow is 05:00 on 2024-03-10 at the default offset, so the current period
// is 2024-03-10 and 2024-03-09 is the last ended one.
var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

const (
	currentKey = "2024-03-10"
	endedKey   = "2024-03-09"
)

type dropFixture struct {
	ctx       context.Context
	domain    *dropDomain
	pi        *testutil.MockPiClient
	signer    *testutil.MockSigner
	publisher *testutil.MockPublisher

	seeds []uint64
	draws int
}

func newDropFixture(seeds ...uint64) *dropFixture {
	f := &dropFixture{
		ctx:       testutil.MockContext(),
		pi:        &testutil.MockPiClient{},
		signer:    &testutil.MockSigner{},
		publisher: &testutil.MockPublisher{},
		seeds:     seeds,
	}

	transactionRepo := repository.NewTransactionRepository()
	f.domain = NewDropDomain(
		repository.NewUserRepository(),
		repository.NewDropPeriodRepository(),
		repository.NewEntryRepository(),
		transactionRepo,
		repository.NewWinnerRepository(),
		repository.NewPayoutRepository(),
		repository.NewPotHistoryRepository(),
		NewPotAggregator(transactionRepo),
		f.pi,
		f.signer,
		f.publisher,
	)
	f.domain.now = func() time.Time { return testNow }
	f.domain.randUint64 = func() (uint64, error) {
		seed := f.seeds[f.draws%len(f.seeds)]
		f.draws++
		return seed, nil
	}

	return f
}

type seedEntry struct {
	uid    string
	amount string
	wallet string
}

// seedPeriod creates one entry per item, in order, with a matching entry
// payment of the given amount.
func seedPeriod(t *testing.T, ctx context.Context, key string, items ...seedEntry) []entity.Entry {
	require.NoError(t, repository.NewDropPeriodRepository().Upsert(ctx, key))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []entity.Entry{}
	for i, item := range items {
		require.NoError(t, repository.NewUserRepository().Upsert(ctx, item.uid))

		entry := entity.Entry{
			Base:      entity.Base{ID: uuid.NewString(), CreatedAt: base.Add(time.Duration(i) * time.Second)},
			UserUID:   item.uid,
			PeriodKey: key,
			Source:    entity.EntryPaid,
			Tier:      item.amount,
			Wallet:    item.wallet,
		}
		entries = append(entries, entry)

		_, err := repository.NewTransactionRepository().Create(ctx, &entity.Transaction{
			Base:      entity.Base{ID: uuid.NewString()},
			UserUID:   item.uid,
			PeriodKey: key,
			Type:      entity.TransactionEntry,
			Amount:    decimal.RequireFromString(item.amount),
			PaymentID: sqlString(uuid.NewString()),
		})
		require.NoError(t, err)
	}

	require.NoError(t, repository.NewEntryRepository().CreateMany(ctx, entries))
	return entries
}

func periodStatus(t *testing.T, ctx context.Context, key string) entity.PeriodStatus {
	period, err := repository.NewDropPeriodRepository().Get(ctx, key)
	require.NoError(t, err)
	return period.Status
}

func requireDecimal(t *testing.T, want, got string) {
	require.True(t, decimal.RequireFromString(want).Equal(decimal.RequireFromString(got)),
		"want %s, got %s", want, got)
}
