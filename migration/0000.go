package migration

import (
	"context"

	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/pkg/xcontext"
)

// migrate0000 will create the database with the latest version.
func migrate0000(ctx context.Context) error {
	return AutoMigrate(ctx)
}

// When this migrator is called, no need to call other migrators.
func AutoMigrate(ctx context.Context) error {
	return xcontext.DB(ctx).AutoMigrate(
		&entity.User{},
		&entity.DropPeriod{},
		&entity.Entry{},
		&entity.Transaction{},
		&entity.Winner{},
		&entity.Payout{},
		&entity.PotHistory{},
		&entity.Referral{},
		&entity.ReferralCodeUsage{},
		&entity.FreeEntryLog{},
		&entity.Migration{},
	)
}
