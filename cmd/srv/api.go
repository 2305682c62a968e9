package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sevendrop/backend/internal/common"
	"github.com/sevendrop/backend/internal/middleware"
	"github.com/sevendrop/backend/pkg/prometheus"
	"github.com/sevendrop/backend/pkg/router"
	"github.com/sevendrop/backend/pkg/xcontext"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func (s *srv) startApi(cctx *cli.Context) error {
	if err := s.loadServices(cctx, true); err != nil {
		return err
	}
	defer s.close()

	s.loadRouter()

	cfg := xcontext.Configs(s.ctx).ApiServer
	s.server = &http.Server{
		Addr:              cfg.Address(),
		Handler:           s.router.Handler(cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(s.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		xcontext.Logger(s.ctx).Infof("Starting server on %s", cfg.Address())
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		xcontext.Logger(s.ctx).Infof("Server is stopping")
		return s.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *srv) loadRouter() {
	s.router = router.New(s.ctx)
	s.router.Before(middleware.WithStartTime())
	s.router.AddCloser(middleware.Logger())
	s.router.AddCloser(middleware.Prometheus())

	s.router.Handle("/metrics", prometheus.NewHandler(common.PromCollectors()...))

	// Public API
	publicRouter := s.router.Branch()
	{
		router.POST(publicRouter, "/registerUser", s.entryDomain.RegisterUser)
		router.GET(publicRouter, "/getAppData", s.entryDomain.GetAppData)
		router.POST(publicRouter, "/claimFreeEntry", s.entryDomain.ClaimFreeEntry)
		router.POST(publicRouter, "/createPayment", s.entryDomain.CreatePayment)
		router.POST(publicRouter, "/approvePayment", s.entryDomain.ApprovePayment)
		router.POST(publicRouter, "/completePayment", s.entryDomain.CompletePayment)
		router.POST(publicRouter, "/applyReferralCode", s.referralDomain.ApplyReferralCode)
		router.POST(publicRouter, "/referUser", s.referralDomain.ReferUser)
	}

	// Operator API
	operatorRouter := s.router.Branch()
	operatorRouter.Before(middleware.NewOperatorAuth(xcontext.Configs(s.ctx).Auth.OperatorSecret).Middleware())
	{
		router.GET(operatorRouter, "/getPot", s.dropDomain.GetPot)
		router.GET(operatorRouter, "/getSettlement", s.dropDomain.GetSettlement)
		router.POST(operatorRouter, "/runDraw", s.dropDomain.RunDraw)
		router.POST(operatorRouter, "/resetPeriod", s.dropDomain.ResetPeriod)
		router.POST(operatorRouter, "/retryPayouts", s.dropDomain.RetryPayouts)
	}
}
