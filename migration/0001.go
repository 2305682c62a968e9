package migration

import (
	"context"

	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/pkg/xcontext"
)

// migrate0001 adds the wallets of users, entries and winners, and the txid of
// completed payouts.
func migrate0001(ctx context.Context) error {
	migrator := xcontext.DB(ctx).Migrator()
	columns := []struct {
		model any
		field string
	}{
		{&entity.User{}, "Wallet"},
		{&entity.Entry{}, "Wallet"},
		{&entity.Winner{}, "WinnerWallet"},
		{&entity.Payout{}, "TxID"},
	}

	for _, c := range columns {
		if migrator.HasColumn(c.model, c.field) {
			continue
		}

		if err := migrator.AddColumn(c.model, c.field); err != nil {
			return err
		}
	}

	return nil
}
