package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sevendrop/backend/internal/domain/cron"
	"github.com/sevendrop/backend/pkg/xcontext"
	"github.com/urfave/cli/v2"
)

func (s *srv) startCron(cctx *cli.Context) error {
	if err := s.loadServices(cctx, true); err != nil {
		return err
	}
	defer s.close()

	cfg := xcontext.Configs(s.ctx).Drop
	cronJobManager := cron.NewCronJobManager()
	cronJobManager.Register(cron.NewDropCronJob(s.dropDomain, s.periodRepo, s.redisClient, cfg.UTCOffset, cfg.Hour))
	cronJobManager.Register(cron.NewPayoutRetryCronJob(s.dropDomain, cfg.PayoutRetryEvery))

	ctx, stop := signal.NotifyContext(s.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cronJobManager.Start(ctx)
	return nil
}
