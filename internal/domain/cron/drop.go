package cron

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sevendrop/backend/internal/common"
	"github.com/sevendrop/backend/internal/domain"
	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/internal/model"
	"github.com/sevendrop/backend/internal/repository"
	"github.com/sevendrop/backend/pkg/dateutil"
	"github.com/sevendrop/backend/pkg/errorx"
	"github.com/sevendrop/backend/pkg/xcontext"
	"github.com/sevendrop/backend/pkg/xredis"
)

const (
	dropLockTTL    = time.Hour
	maxDrawBackoff = 10 * time.Minute
)

// DropCronJob draws and resets the period which ended at the last drop
// instant, and every older period left unreset by a missed or failed run.
type DropCronJob struct {
	dropDomain  domain.DropDomain
	periodRepo  repository.DropPeriodRepository
	redisClient xredis.Client
	utcOffset   time.Duration
	hour        int

	now func() time.Time
}

func NewDropCronJob(
	dropDomain domain.DropDomain,
	periodRepo repository.DropPeriodRepository,
	redisClient xredis.Client,
	utcOffset time.Duration,
	hour int,
) *DropCronJob {
	return &DropCronJob{
		dropDomain:  dropDomain,
		periodRepo:  periodRepo,
		redisClient: redisClient,
		utcOffset:   utcOffset,
		hour:        hour,
		now:         time.Now,
	}
}

func (job *DropCronJob) Do(ctx context.Context) {
	current := dateutil.PeriodKey(job.now(), job.utcOffset, job.hour)
	ended, err := dateutil.ShiftPeriodKey(current, -1)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get ended period: %v", err)
		return
	}

	for _, key := range job.pendingKeys(ctx, current, ended) {
		if ctx.Err() != nil {
			return
		}

		job.drop(ctx, key)
	}
}

// pendingKeys returns the ended period and every older period which is not
// archived or halted yet, oldest first.
func (job *DropCronJob) pendingKeys(ctx context.Context, current, ended string) []string {
	keys := []string{ended}

	periods, err := job.periodRepo.GetByStatus(ctx, entity.PeriodOpen, entity.PeriodClosed, entity.PeriodSettled)
	if err != nil {
		xcontext.Logger(ctx).Warnf("Cannot get pending periods, drop %s only: %v", ended, err)
		return keys
	}

	for _, p := range periods {
		if p.PeriodKey < current && p.PeriodKey != ended {
			keys = append(keys, p.PeriodKey)
		}
	}

	sort.Strings(keys)
	return keys
}

func (job *DropCronJob) drop(ctx context.Context, key string) {
	// The lock only avoids duplicated work across instances. A draw racing
	// without it still settles the period once.
	lockKey := common.RedisKeyDropLock(key)
	locked, err := job.redisClient.SetNX(ctx, lockKey, uuid.NewString(), dropLockTTL)
	if err != nil {
		xcontext.Logger(ctx).Warnf("Cannot lock drop of %s, run without lock: %v", key, err)
	} else if !locked {
		xcontext.Logger(ctx).Infof("Drop of %s is handled by another instance", key)
		return
	}

	if err := job.retry(ctx, key); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot drop period %s: %v", key, err)

		// The next run, on any instance, takes the period again.
		if err := job.redisClient.Del(ctx, lockKey); err != nil {
			xcontext.Logger(ctx).Warnf("Cannot release drop lock of %s: %v", key, err)
		}
	}
}

// retry runs the drop of the period again with exponential backoff while the
// store is unavailable.
func (job *DropCronJob) retry(ctx context.Context, key string) error {
	cfg := xcontext.Configs(ctx).Drop
	for attempt := 0; ; attempt++ {
		err := job.drawAndReset(ctx, key)
		if err == nil {
			return nil
		}

		if errorx.CodeOf(err) != errorx.StoreUnavailable || attempt+1 >= cfg.DrawAttempts {
			return err
		}

		backoff := cfg.DrawBackoff << attempt
		if backoff <= 0 || backoff > maxDrawBackoff {
			backoff = maxDrawBackoff
		}

		xcontext.Logger(ctx).Warnf("Drop of %s failed (attempt %d), retry in %s: %v", key, attempt+1, backoff, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (job *DropCronJob) drawAndReset(ctx context.Context, key string) error {
	resp, err := job.dropDomain.RunDraw(ctx, &model.RunDrawRequest{PeriodKey: key})
	if err != nil {
		return err
	}

	switch resp.Outcome {
	case model.DrawSettled, model.DrawAlreadySettled:
		xcontext.Logger(ctx).Infof("Draw of %s: %s, winner %s", key, resp.Outcome, resp.Settlement.WinnerUID)
	case model.DrawPayoutPending:
		xcontext.Logger(ctx).Warnf("Draw of %s: winner %s, payout pending: %s",
			key, resp.Settlement.WinnerUID, resp.PayoutError)
	case model.DrawNoEligibleEntries:
		xcontext.Logger(ctx).Infof("Draw of %s: no eligible entries", key)
	default:
		return errorx.New(errorx.Internal, "Unknown outcome of draw %s: %s", key, resp.Outcome)
	}

	reset, err := job.dropDomain.ResetPeriod(ctx, &model.ResetPeriodRequest{PeriodKey: key})
	if err != nil {
		return err
	}

	xcontext.Logger(ctx).Infof("Period %s reset, archived pot %s", key, reset.ArchivedTotal)
	return nil
}

// RunNow catches up a drop missed while no instance was running.
func (job *DropCronJob) RunNow() bool {
	return true
}

func (job *DropCronJob) Next() time.Time {
	return dateutil.NextDrop(job.now(), job.utcOffset, job.hour)
}

type PayoutRetryCronJob struct {
	dropDomain domain.DropDomain
	every      time.Duration
}

func NewPayoutRetryCronJob(dropDomain domain.DropDomain, every time.Duration) *PayoutRetryCronJob {
	return &PayoutRetryCronJob{dropDomain: dropDomain, every: every}
}

func (job *PayoutRetryCronJob) Do(ctx context.Context) {
	if err := job.dropDomain.RetryAllPayouts(ctx); err != nil {
		xcontext.Logger(ctx).Warnf("Some payouts are still pending: %v", err)
	}
}

func (job *PayoutRetryCronJob) RunNow() bool {
	return false
}

func (job *PayoutRetryCronJob) Next() time.Time {
	return time.Now().Add(job.every)
}
