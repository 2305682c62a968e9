package domain

import (
	"context"

	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/internal/repository"
	"github.com/sevendrop/backend/pkg/errorx"
	"github.com/sevendrop/backend/pkg/xcontext"
	"github.com/shopspring/decimal"
)

type PotAggregator interface {
	// ComputePot sums the entry payments of a period. A store failure is
	// reported as StoreUnavailable and never as an empty pot.
	ComputePot(ctx context.Context, periodKey string) (decimal.Decimal, error)
}

type potAggregator struct {
	transactionRepo repository.TransactionRepository
}

func NewPotAggregator(transactionRepo repository.TransactionRepository) *potAggregator {
	return &potAggregator{transactionRepo: transactionRepo}
}

func (a *potAggregator) ComputePot(ctx context.Context, periodKey string) (decimal.Decimal, error) {
	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()

	ctx = xcontext.WithDBTransaction(ctx)
	defer xcontext.WithRollbackDBTransaction(ctx)

	txs, err := a.transactionRepo.GetByPeriodAndType(ctx, periodKey, entity.TransactionEntry)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get entry transactions of %s: %v", periodKey, err)
		return decimal.Zero, errorx.New(errorx.StoreUnavailable, "Cannot read the pot of %s", periodKey)
	}

	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}

	if err := xcontext.CommitDBTransaction(ctx); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot commit pot read of %s: %v", periodKey, err)
		return decimal.Zero, errorx.New(errorx.StoreUnavailable, "Cannot read the pot of %s", periodKey)
	}

	return total, nil
}
