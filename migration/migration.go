package migration

import (
	"context"
	"errors"

	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/pkg/xcontext"
	"gorm.io/gorm"
)

type migrator func(ctx context.Context) error

// Append new migrators to the end, never reorder.
var migrators = []migrator{
	migrate0000,
	migrate0001,
}

// Migrate runs every migrator whose version is newer than the one recorded in
// the migrations table.
func Migrate(ctx context.Context) error {
	db := xcontext.DB(ctx)
	if err := db.AutoMigrate(&entity.Migration{}); err != nil {
		return err
	}

	var last entity.Migration
	current := -1
	err := db.Order("version DESC").Take(&last).Error
	switch {
	case err == nil:
		current = last.Version
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}

	for version := current + 1; version < len(migrators); version++ {
		xcontext.Logger(ctx).Infof("Running migration %04d", version)
		if err := migrators[version](ctx); err != nil {
			return err
		}

		if err := db.Create(&entity.Migration{Version: version}).Error; err != nil {
			return err
		}
	}

	return nil
}
