package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sevendrop/backend/config"
	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/internal/model"
	"github.com/sevendrop/backend/internal/repository"
	"github.com/sevendrop/backend/pkg/errorx"
	"github.com/sevendrop/backend/pkg/testutil"
	"github.com/stretchr/testify/require"
)

type mockDropDomain struct {
	drawOutcome model.DrawOutcome
	drawErr     error

	// failDraws is the number of draws failing with drawErr, 0 for all.
	failDraws int

	draws    []string
	resets   []string
	retryAll int
}

func (m *mockDropDomain) GetPot(context.Context, *model.GetPotRequest) (*model.GetPotResponse, error) {
	return &model.GetPotResponse{}, nil
}

func (m *mockDropDomain) RunDraw(_ context.Context, req *model.RunDrawRequest) (*model.RunDrawResponse, error) {
	m.draws = append(m.draws, req.PeriodKey)
	if m.drawErr != nil && (m.failDraws == 0 || len(m.draws) <= m.failDraws) {
		return nil, m.drawErr
	}

	resp := &model.RunDrawResponse{Outcome: m.drawOutcome}
	if m.drawOutcome != model.DrawNoEligibleEntries {
		resp.Settlement = &model.Settlement{PeriodKey: req.PeriodKey, WinnerUID: "bob"}
	}

	return resp, nil
}

func (m *mockDropDomain) GetSettlement(context.Context, *model.GetSettlementRequest) (*model.GetSettlementResponse, error) {
	return &model.GetSettlementResponse{}, nil
}

func (m *mockDropDomain) RetryPayouts(context.Context, *model.RetryPayoutsRequest) (*model.RetryPayoutsResponse, error) {
	return &model.RetryPayoutsResponse{}, nil
}

func (m *mockDropDomain) ResetPeriod(_ context.Context, req *model.ResetPeriodRequest) (*model.ResetPeriodResponse, error) {
	m.resets = append(m.resets, req.PeriodKey)
	return &model.ResetPeriodResponse{PeriodKey: req.PeriodKey, ArchivedTotal: "0"}, nil
}

func (m *mockDropDomain) RetryAllPayouts(context.Context) error {
	m.retryAll++
	return nil
}

// 2024-03-11 02:00:01 UTC is one second after the drop of 2024-03-10 at
// 19:00 UTC-7.
var afterDrop = time.Date(2024, 3, 11, 2, 0, 1, 0, time.UTC)

func newTestDropCronJob(d *mockDropDomain, redis *testutil.MockRedisClient) *DropCronJob {
	job := NewDropCronJob(d, repository.NewDropPeriodRepository(), redis, -7*time.Hour, 19)
	job.now = func() time.Time { return afterDrop }
	return job
}

func mockCronContext() context.Context {
	return testutil.MockContextWithConfigs(func(c *config.Configs) {
		c.Drop.DrawAttempts = 3
		c.Drop.DrawBackoff = time.Millisecond
	})
}

func TestDropCronJob_Do(t *testing.T) {
	storeErr := errorx.New(errorx.StoreUnavailable, "down")
	tests := []struct {
		name      string
		outcome   model.DrawOutcome
		drawErr   error
		failDraws int
		wantDraws int
		wantReset bool
	}{
		{name: "settled", outcome: model.DrawSettled, wantDraws: 1, wantReset: true},
		{name: "already settled", outcome: model.DrawAlreadySettled, wantDraws: 1, wantReset: true},
		{name: "no eligible entries", outcome: model.DrawNoEligibleEntries, wantDraws: 1, wantReset: true},
		{name: "payout pending", outcome: model.DrawPayoutPending, wantDraws: 1, wantReset: true},
		{name: "store recovers", outcome: model.DrawSettled, drawErr: storeErr, failDraws: 2, wantDraws: 3, wantReset: true},
		{name: "store stays down", drawErr: storeErr, wantDraws: 3, wantReset: false},
		{name: "not retried", drawErr: errorx.New(errorx.Internal, "bug"), wantDraws: 1, wantReset: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &mockDropDomain{drawOutcome: tt.outcome, drawErr: tt.drawErr, failDraws: tt.failDraws}
			newTestDropCronJob(d, &testutil.MockRedisClient{}).Do(mockCronContext())

			require.Len(t, d.draws, tt.wantDraws)
			for _, key := range d.draws {
				require.Equal(t, "2024-03-10", key)
			}

			if tt.wantReset {
				require.Equal(t, []string{"2024-03-10"}, d.resets)
			} else {
				require.Empty(t, d.resets)
			}
		})
	}
}

func TestDropCronJob_Do_ReleasesLockOnFailure(t *testing.T) {
	d := &mockDropDomain{drawErr: errorx.New(errorx.StoreUnavailable, "down")}
	released := []string{}
	redis := &testutil.MockRedisClient{
		DelFunc: func(ctx context.Context, key ...string) error {
			released = append(released, key...)
			return nil
		},
	}

	newTestDropCronJob(d, redis).Do(mockCronContext())
	require.Equal(t, []string{"droplock:2024-03-10"}, released)
}

func TestDropCronJob_Do_KeepsLockOnSuccess(t *testing.T) {
	d := &mockDropDomain{drawOutcome: model.DrawSettled}
	redis := &testutil.MockRedisClient{
		DelFunc: func(ctx context.Context, key ...string) error {
			t.Fatalf("unexpected release of %v", key)
			return nil
		},
	}

	newTestDropCronJob(d, redis).Do(mockCronContext())
	require.Equal(t, []string{"2024-03-10"}, d.resets)
}

func TestDropCronJob_Do_CatchesUpMissedPeriods(t *testing.T) {
	ctx := mockCronContext()
	periodRepo := repository.NewDropPeriodRepository()

	for key, status := range map[string]entity.PeriodStatus{
		"2024-03-06": entity.PeriodArchived,
		"2024-03-07": entity.PeriodHalted,
		"2024-03-08": entity.PeriodSettled,
		"2024-03-09": entity.PeriodClosed,
		"2024-03-10": entity.PeriodOpen,
		"2024-03-11": entity.PeriodOpen,
	} {
		require.NoError(t, periodRepo.Upsert(ctx, key))
		if status != entity.PeriodOpen {
			require.NoError(t, periodRepo.UpdateStatus(ctx, key, status, entity.PeriodOpen))
		}
	}

	d := &mockDropDomain{drawOutcome: model.DrawSettled}
	newTestDropCronJob(d, &testutil.MockRedisClient{}).Do(ctx)

	want := []string{"2024-03-08", "2024-03-09", "2024-03-10"}
	require.Equal(t, want, d.draws)
	require.Equal(t, want, d.resets)
}

func TestDropCronJob_Do_Locked(t *testing.T) {
	d := &mockDropDomain{drawOutcome: model.DrawSettled}
	redis := &testutil.MockRedisClient{
		SetNXFunc: func(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
			require.Equal(t, "droplock:2024-03-10", key)
			return false, nil
		},
	}

	newTestDropCronJob(d, redis).Do(mockCronContext())
	require.Empty(t, d.draws)
}

func TestDropCronJob_Do_LockUnavailable(t *testing.T) {
	d := &mockDropDomain{drawOutcome: model.DrawSettled}
	redis := &testutil.MockRedisClient{
		SetNXFunc: func(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
			return false, errors.New("redis is down")
		},
	}

	newTestDropCronJob(d, redis).Do(mockCronContext())
	require.Equal(t, []string{"2024-03-10"}, d.draws)
}

func TestDropCronJob_Next(t *testing.T) {
	job := newTestDropCronJob(&mockDropDomain{}, &testutil.MockRedisClient{})
	require.True(t, time.Date(2024, 3, 12, 2, 0, 0, 0, time.UTC).Equal(job.Next()))
}

func TestCronJobManager(t *testing.T) {
	d := &mockDropDomain{}
	manager := NewCronJobManager()
	manager.Register(NewPayoutRetryCronJob(d, 10*time.Millisecond))

	ctx, cancel := context.WithTimeout(testutil.MockContext(), 100*time.Millisecond)
	defer cancel()

	manager.Start(ctx)
	require.Positive(t, d.retryAll)
}
