package testutil

import (
	"context"

	"github.com/sevendrop/backend/config"
	"github.com/sevendrop/backend/migration"
	"github.com/sevendrop/backend/pkg/logger"
	"github.com/sevendrop/backend/pkg/xcontext"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const PlatformUID = "platform"

// MockContext returns a context carrying default configs, a silent logger
// and a fresh in-memory database with every table migrated.
func MockContext() context.Context {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		panic(err)
	}

	// Every connection to an in-memory sqlite owns a separate database.
	sqlDB, err := db.DB()
	if err != nil {
		panic(err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := config.Default()
	cfg.Drop.PlatformUID = PlatformUID
	cfg.Drop.ReferralCodes = []string{"DROP1234", "PIONEER"}

	ctx := context.Background()
	ctx = xcontext.WithConfigs(ctx, cfg)
	ctx = xcontext.WithLogger(ctx, logger.NewLogger(logger.SILENCE))
	ctx = xcontext.WithDB(ctx, db)

	if err := migration.AutoMigrate(ctx); err != nil {
		panic(err)
	}

	return ctx
}

func MockContextWithConfigs(modify func(*config.Configs)) context.Context {
	ctx := MockContext()
	cfg := xcontext.Configs(ctx)
	modify(&cfg)
	return xcontext.WithConfigs(ctx, cfg)
}
