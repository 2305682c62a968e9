package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/internal/model"
	"github.com/sevendrop/backend/internal/repository"
	"github.com/sevendrop/backend/pkg/errorx"
	"github.com/sevendrop/backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type failingTransactionRepository struct {
	repository.TransactionRepository
}

func (failingTransactionRepository) GetByPeriodAndType(
	context.Context, string, entity.TransactionType,
) ([]entity.Transaction, error) {
	return nil, errors.New("connection refused")
}

func Test_potAggregator_ComputePot(t *testing.T) {
	ctx := testutil.MockContext()
	transactionRepo := repository.NewTransactionRepository()
	aggregator := NewPotAggregator(transactionRepo)

	pot, err := aggregator.ComputePot(ctx, endedKey)
	require.NoError(t, err)
	require.True(t, pot.IsZero())

	seedPeriod(t, ctx, endedKey,
		seedEntry{uid: "alice", amount: "1"},
		seedEntry{uid: "bob", amount: "5"},
		seedEntry{uid: "alice", amount: "10"},
	)
	seedPeriod(t, ctx, currentKey, seedEntry{uid: "carol", amount: "5"})

	// Payouts are not part of the pot.
	_, err = transactionRepo.Create(ctx, &entity.Transaction{
		Base:      entity.Base{ID: uuid.NewString()},
		UserUID:   "bob",
		PeriodKey: endedKey,
		Type:      entity.TransactionPayout,
		Amount:    decimal.NewFromInt(15),
	})
	require.NoError(t, err)

	pot, err = aggregator.ComputePot(ctx, endedKey)
	require.NoError(t, err)
	requireDecimal(t, "16", pot.String())

	pot, err = aggregator.ComputePot(ctx, currentKey)
	require.NoError(t, err)
	requireDecimal(t, "5", pot.String())
}

func Test_potAggregator_ComputePot_StoreUnavailable(t *testing.T) {
	ctx := testutil.MockContext()
	aggregator := NewPotAggregator(failingTransactionRepository{})

	pot, err := aggregator.ComputePot(ctx, endedKey)
	require.Error(t, err)
	require.Equal(t, errorx.StoreUnavailable, errorx.CodeOf(err))
	require.True(t, pot.IsZero())
}

func Test_dropDomain_RunDraw_StoreUnavailable(t *testing.T) {
	f := newDropFixture(4)
	seedThreeUsers(t, f.ctx)
	f.domain.potAggregator = NewPotAggregator(failingTransactionRepository{})

	_, err := f.domain.RunDraw(f.ctx, &model.RunDrawRequest{PeriodKey: endedKey})
	require.Error(t, err)
	require.Equal(t, errorx.StoreUnavailable, errorx.CodeOf(err))

	_, err = repository.NewWinnerRepository().GetByPeriod(f.ctx, endedKey)
	require.Error(t, err)
	require.Empty(t, f.pi.Created)
}
