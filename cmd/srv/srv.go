package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sevendrop/backend/config"
	"github.com/sevendrop/backend/internal/domain"
	"github.com/sevendrop/backend/internal/repository"
	"github.com/sevendrop/backend/migration"
	"github.com/sevendrop/backend/pkg/kafka"
	"github.com/sevendrop/backend/pkg/logger"
	"github.com/sevendrop/backend/pkg/pi"
	"github.com/sevendrop/backend/pkg/pubsub"
	"github.com/sevendrop/backend/pkg/router"
	"github.com/sevendrop/backend/pkg/xcontext"
	"github.com/sevendrop/backend/pkg/xredis"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type srv struct {
	app *cli.App
	ctx context.Context

	redisClient xredis.Client
	publisher   pubsub.Publisher
	piClient    pi.Client
	signer      pi.Signer
	closers     []func() error

	userRepo         repository.UserRepository
	periodRepo       repository.DropPeriodRepository
	entryRepo        repository.EntryRepository
	transactionRepo  repository.TransactionRepository
	winnerRepo       repository.WinnerRepository
	payoutRepo       repository.PayoutRepository
	potHistoryRepo   repository.PotHistoryRepository
	referralRepo     repository.ReferralRepository
	freeEntryLogRepo repository.FreeEntryLogRepository

	potAggregator  domain.PotAggregator
	dropDomain     domain.DropDomain
	entryDomain    domain.EntryDomain
	referralDomain domain.ReferralDomain

	router *router.Router
	server *http.Server
}

func (s *srv) loadConfig(cctx *cli.Context) error {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return err
	}

	s.ctx = cctx.Context
	s.ctx = xcontext.WithConfigs(s.ctx, cfg)
	s.ctx = xcontext.WithLogger(s.ctx, logger.NewLogger(logger.ParseLevel(cfg.LogLevel)))
	s.ctx = xcontext.WithHTTPClient(s.ctx, &http.Client{})
	return nil
}

func (s *srv) newDatabase() (*gorm.DB, error) {
	cfg := xcontext.Configs(s.ctx).Database

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.ConnectionString())
	case "mysql":
		dialector = mysql.New(mysql.Config{
			DSN:                       cfg.ConnectionString(),
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	return gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
}

func (s *srv) loadDatabase() error {
	db, err := s.newDatabase()
	if err != nil {
		return err
	}

	s.ctx = xcontext.WithDB(s.ctx, db)
	return nil
}

func (s *srv) migrateDB() error {
	return migration.Migrate(s.ctx)
}

func (s *srv) loadRedisClient() error {
	client, err := xredis.NewClient(s.ctx)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	s.redisClient = client
	s.closers = append(s.closers, client.Close)
	return nil
}

func (s *srv) loadPublisher() error {
	cfg := xcontext.Configs(s.ctx).Kafka
	if cfg.Addr == "" {
		xcontext.Logger(s.ctx).Warnf("No kafka broker configured, settlement events are dropped")
		s.publisher = pubsub.NewNopPublisher()
		return nil
	}

	publisher, err := kafka.NewPublisher("sevendrop", strings.Split(cfg.Addr, ","))
	if err != nil {
		return fmt.Errorf("connect kafka: %w", err)
	}

	s.publisher = publisher
	s.closers = append(s.closers, publisher.Close)
	return nil
}

func (s *srv) loadPiClient() {
	cfg := xcontext.Configs(s.ctx).Pi
	s.piClient = pi.NewClient(cfg.Endpoint, cfg.APIKey, cfg.Timeout)
	s.signer = pi.NewSigner(cfg.SignerEndpoint, cfg.SignerToken, cfg.Timeout)
}

func (s *srv) loadRepos() {
	s.userRepo = repository.NewUserRepository()
	s.periodRepo = repository.NewDropPeriodRepository()
	s.entryRepo = repository.NewEntryRepository()
	s.transactionRepo = repository.NewTransactionRepository()
	s.winnerRepo = repository.NewWinnerRepository()
	s.payoutRepo = repository.NewPayoutRepository()
	s.potHistoryRepo = repository.NewPotHistoryRepository()
	s.referralRepo = repository.NewReferralRepository()
	s.freeEntryLogRepo = repository.NewFreeEntryLogRepository()
}

func (s *srv) loadDomains() {
	s.potAggregator = domain.NewPotAggregator(s.transactionRepo)
	s.dropDomain = domain.NewDropDomain(
		s.userRepo,
		s.periodRepo,
		s.entryRepo,
		s.transactionRepo,
		s.winnerRepo,
		s.payoutRepo,
		s.potHistoryRepo,
		s.potAggregator,
		s.piClient,
		s.signer,
		s.publisher,
	)

	if s.redisClient != nil {
		s.entryDomain = domain.NewEntryDomain(
			s.userRepo,
			s.periodRepo,
			s.entryRepo,
			s.transactionRepo,
			s.freeEntryLogRepo,
			s.potAggregator,
			s.piClient,
			s.redisClient,
		)
	}

	s.referralDomain = domain.NewReferralDomain(s.userRepo, s.periodRepo, s.entryRepo, s.referralRepo)
}

// loadServices connects the stores and the clients, then builds the domains.
// Redis is only needed by the public api and the scheduler.
func (s *srv) loadServices(cctx *cli.Context, withRedis bool) error {
	if err := s.loadConfig(cctx); err != nil {
		return err
	}

	if err := s.loadDatabase(); err != nil {
		return err
	}

	if err := s.migrateDB(); err != nil {
		return err
	}

	if err := s.loadPublisher(); err != nil {
		return err
	}

	if withRedis {
		if err := s.loadRedisClient(); err != nil {
			return err
		}
	}

	s.loadPiClient()
	s.loadRepos()
	s.loadDomains()
	return nil
}

func (s *srv) close() {
	for _, closer := range s.closers {
		if err := closer(); err != nil {
			xcontext.Logger(s.ctx).Warnf("Cannot close: %v", err)
		}
	}
}
