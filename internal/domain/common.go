package domain

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/internal/model"
	"github.com/sevendrop/backend/internal/repository"
	"github.com/sevendrop/backend/pkg/dateutil"
	"github.com/sevendrop/backend/pkg/pubsub"
	"github.com/sevendrop/backend/pkg/xcontext"
	"gorm.io/gorm"
)

var errPeriodClosed = errors.New("period is closed")

func sqlString(s string) sql.NullString {
	return sql.NullString{Valid: s != "", String: s}
}

// withStoreTimeout bounds a store operation by the configured database
// timeout.
func withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := xcontext.Configs(ctx).Database.Timeout
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}

func currentPeriodKey(ctx context.Context, now time.Time) string {
	cfg := xcontext.Configs(ctx).Drop
	return dateutil.PeriodKey(now, cfg.UTCOffset, cfg.Hour)
}

// lastEndedPeriodKey returns the key of the most recent period whose drop
// already happened.
func lastEndedPeriodKey(ctx context.Context, now time.Time) string {
	key, _ := dateutil.ShiftPeriodKey(currentPeriodKey(ctx, now), -1)
	return key
}

type entryGranter struct {
	userRepo   repository.UserRepository
	periodRepo repository.DropPeriodRepository
	entryRepo  repository.EntryRepository
}

// grant records n entries of uid in the period. It must run inside a
// transaction, and returns errPeriodClosed if the period is not open.
func (g *entryGranter) grant(
	ctx context.Context,
	uid, periodKey string,
	source entity.EntrySource,
	tier string,
	n int,
) error {
	if err := g.periodRepo.Upsert(ctx, periodKey); err != nil {
		return err
	}

	if err := g.periodRepo.AddEntries(ctx, periodKey, n); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errPeriodClosed
		}

		return err
	}

	if n <= 0 {
		return nil
	}

	user, err := g.userRepo.GetByUID(ctx, uid)
	if err != nil {
		return err
	}

	entries := make([]entity.Entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, entity.Entry{
			Base:      entity.Base{ID: uuid.NewString()},
			UserUID:   uid,
			PeriodKey: periodKey,
			Source:    source,
			Wallet:    user.Wallet,
			Tier:      tier,
		})
	}

	if err := g.entryRepo.CreateMany(ctx, entries); err != nil {
		return err
	}

	return g.userRepo.IncreaseEntries(ctx, uid, n)
}

// registerUser creates the user if needed and records the wallet when one is
// given.
func (g *entryGranter) registerUser(ctx context.Context, uid, wallet string) error {
	if err := g.userRepo.Upsert(ctx, uid); err != nil {
		return err
	}

	if wallet == "" {
		return nil
	}

	return g.userRepo.SetWallet(ctx, uid, wallet)
}

func publishSettlementEvent(ctx context.Context, publisher pubsub.Publisher, event model.SettlementEvent) {
	b, err := json.Marshal(event)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot marshal settlement event: %v", err)
		return
	}

	topic := xcontext.Configs(ctx).Kafka.SettlementTopic
	err = publisher.Publish(ctx, topic, &pubsub.Pack{Key: []byte(event.PeriodKey), Msg: b})
	if err != nil {
		xcontext.Logger(ctx).Warnf("Cannot publish %s event of %s: %v", event.Type, event.PeriodKey, err)
	}
}
