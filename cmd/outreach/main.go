package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/LeventeLantos/outreach-scheduler/internal/api"
	"github.com/LeventeLantos/outreach-scheduler/internal/auth"
	"github.com/LeventeLantos/outreach-scheduler/internal/cache"
	"github.com/LeventeLantos/outreach-scheduler/internal/client"
	"github.com/LeventeLantos/outreach-scheduler/internal/config"
	"github.com/LeventeLantos/outreach-scheduler/internal/logging"
	"github.com/LeventeLantos/outreach-scheduler/internal/oauth1"
	"github.com/LeventeLantos/outreach-scheduler/internal/publish"
	"github.com/LeventeLantos/outreach-scheduler/internal/repo"
	"github.com/LeventeLantos/outreach-scheduler/internal/scheduler"
	"github.com/LeventeLantos/outreach-scheduler/internal/service"
	"github.com/LeventeLantos/outreach-scheduler/internal/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("outreach scheduler stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	logger.Info().
		Str("addr", cfg.Server.Address).
		Dur("interval", cfg.Scheduler.Interval).
		Int("batch", cfg.Scheduler.BatchSize).
		Bool("redis", cfg.Redis.Enabled).
		Msg("outreach scheduler starting")

	if cfg.Database.RunMigrations {
		if err := storage.RunMigrations(cfg.Database.PostgresURL); err != nil {
			return err
		}
	}
	version, dirty, err := storage.MigrationVersion(cfg.Database.PostgresURL)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("database schema version %d is dirty", version)
	}
	logger.Info().Uint("schema_version", version).Msg("database schema ready")

	db, err := storage.NewPostgresDB(ctx, cfg.Database.PostgresURL)
	if err != nil {
		return err
	}
	defer db.Close()
	store := repo.NewPostgresStore(db.Pool())

	var shared interface {
		cache.ReceiptCache
		cache.Locker
	} = cache.Noop{}
	if cfg.Redis.Enabled {
		rdb, err := storage.NewRedisClient(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		shared = cache.NewRedisCache(rdb, cfg.Redis.TTL)
	}

	publishers, err := newPublishers(cfg, logger)
	if err != nil {
		return err
	}

	jwtManager, err := auth.NewJWTManager(cfg.Credentials.JWTSecret)
	if err != nil {
		return err
	}

	poller := service.NewPoller(service.PollerDeps{
		Placements: store,
		Contents:   store,
		Accounts:   store,
		Jobs:       store,
		Publishers: publishers,
		Receipts:   shared,
		Logger:     logger,
	}, cfg.Scheduler.BatchSize)
	reaper := service.NewReaper(store, store, cfg.Reaper.StaleAfter, logger)

	mailer := client.NewEmailClient(cfg.Provider.EmailURL, cfg.Credentials.EmailAPIKey, cfg.Provider.Timeout)
	campaignDeps := service.CampaignDeps{
		Campaigns:  store,
		Recipients: store,
		Deliverer:  service.NewDeliverer(mailer, store, store, cfg.Email.From, float64(cfg.Email.RatePerSecond), logger),
		Logger:     logger,
	}
	sweeper := service.NewCampaignSweeper(campaignDeps, cfg.Email.CampaignBatch)
	sender := service.NewCampaignSender(campaignDeps, cfg.Email.SendBatch)

	sched, err := newSchedulers(cfg, shared, reaper, poller, sweeper, logger)
	if err != nil {
		return err
	}
	if cfg.Scheduler.AutoStart {
		sched.Start()
	}
	defer sched.Stop()

	handler := api.NewHandler(api.Deps{
		Sched:     sched,
		Poller:    poller,
		Campaigns: sweeper,
		Sender:    sender,
		Jobs:      service.NewJobs(store, publishers, shared, logger),
		Logger:    logger,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.Router(handler, api.Auth{Users: jwtManager, Service: auth.NewServiceKey(cfg.Credentials.ServiceAPIKey)}, logger),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newPublishers builds the provider registry. Each provider is wrapped in
// its own circuit breaker.
func newPublishers(cfg *config.Config, logger zerolog.Logger) (*publish.Registry, error) {
	signer, err := oauth1.NewSigner(cfg.Credentials.Twitter())
	if err != nil {
		return nil, fmt.Errorf("twitter credentials: %w", err)
	}
	twitter := publish.NewTwitter(client.NewTwitterClient(cfg.Provider.TwitterURL, signer, cfg.Provider.Timeout))

	return publish.NewRegistry(
		publish.WithBreaker(twitter, publish.DefaultBreakerConfig(), logger),
	), nil
}

func newSchedulers(cfg *config.Config, locker cache.Locker, reaper *service.Reaper, poller *service.Poller, sweeper *service.CampaignSweeper, logger zerolog.Logger) (*scheduler.Group, error) {
	placements, err := scheduler.New(
		"placements",
		cfg.Scheduler.Interval,
		service.Exclusive(locker, "sweep:placements", lockTTL(cfg.Scheduler.Interval), logger, service.PlacementTick(reaper, poller)),
		logger,
	)
	if err != nil {
		return nil, err
	}
	campaigns, err := scheduler.New(
		"campaigns",
		cfg.Email.SweepInterval,
		service.Exclusive(locker, "sweep:campaigns", lockTTL(cfg.Email.SweepInterval), logger, service.CampaignTick(sweeper)),
		logger,
	)
	if err != nil {
		return nil, err
	}
	return scheduler.NewGroup(placements, campaigns), nil
}

// lockTTL outlives one tick so a slow sweep keeps its lock, but expires
// well before a crashed holder would block the next few ticks.
func lockTTL(interval time.Duration) time.Duration {
	return max(2*interval, time.Minute)
}
