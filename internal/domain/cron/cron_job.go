package cron

import (
	"context"
	"sync"
	"time"

	"github.com/sevendrop/backend/pkg/xcontext"
)

type CronJob interface {
	Do(context.Context)
	RunNow() bool
	Next() time.Time
}

type CronJobManager struct {
	mutex   sync.Mutex
	wait    sync.WaitGroup
	jobs    map[CronJob]*time.Timer
	stopped bool
}

func NewCronJobManager() *CronJobManager {
	return &CronJobManager{jobs: make(map[CronJob]*time.Timer)}
}

func (m *CronJobManager) Register(job CronJob) {
	m.jobs[job] = nil
}

// Start schedules every registered job and blocks until ctx is done and the
// running jobs returned.
func (m *CronJobManager) Start(ctx context.Context) {
	xcontext.Logger(ctx).Infof("Cron job manager started")

	for job := range m.jobs {
		if job.RunNow() {
			m.schedule(ctx, job, 0)
		} else {
			m.schedule(ctx, job, time.Until(job.Next()))
		}
	}

	<-ctx.Done()

	m.mutex.Lock()
	m.stopped = true
	for _, timer := range m.jobs {
		if timer != nil {
			timer.Stop()
		}
	}
	m.mutex.Unlock()

	m.wait.Wait()
	xcontext.Logger(ctx).Infof("Cron job manager stopped")
}

func (m *CronJobManager) schedule(ctx context.Context, job CronJob, after time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.stopped {
		return
	}

	m.jobs[job] = time.AfterFunc(after, func() {
		m.mutex.Lock()
		if m.stopped {
			m.mutex.Unlock()
			return
		}
		m.wait.Add(1)
		m.mutex.Unlock()

		defer m.wait.Done()
		m.run(ctx, job)
	})
}

func (m *CronJobManager) run(ctx context.Context, job CronJob) {
	xcontext.Logger(ctx).Infof("%T is running...", job)
	job.Do(ctx)
	xcontext.Logger(ctx).Infof("%T ok", job)

	m.schedule(ctx, job, time.Until(job.Next()))
}
