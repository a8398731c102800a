package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/companion-hub/companion-hub/internal/api/http"
	appBooking "github.com/companion-hub/companion-hub/internal/application/booking"
	"github.com/companion-hub/companion-hub/internal/application/completion"
	"github.com/companion-hub/companion-hub/internal/config"
	"github.com/companion-hub/companion-hub/internal/domain/notification"
	"github.com/companion-hub/companion-hub/internal/infrastructure/natsbus"
	"github.com/companion-hub/companion-hub/internal/infrastructure/postgres"
	"github.com/companion-hub/companion-hub/internal/infrastructure/redisdedupe"
	"github.com/companion-hub/companion-hub/internal/infrastructure/sse"
	"github.com/companion-hub/companion-hub/internal/migrations"
)

func main() {
	// A missing .env file is fine; the environment wins either way.
	_ = godotenv.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("db error")
	}
	defer pool.Close()

	var schema fs.FS = migrations.FS
	if cfg.MigrationsDir != "" {
		schema = os.DirFS(cfg.MigrationsDir)
	}
	if err := postgres.RunMigrations(ctx, pool, schema, logger); err != nil {
		logger.Fatal().Err(err).Msg("migration error")
	}

	store := postgres.NewBookingRepository(pool, cfg.StoreTimeout)
	sseHub := sse.NewHub()
	defer sseHub.Stop()

	// notification fan-out
	dispatchers := notification.Multi{sse.NewDispatcher(sseHub, logger)}
	if cfg.NATSURL != "" {
		publisher, err := natsbus.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("nats error")
		}
		defer func() { _ = publisher.Close() }()
		dispatchers = append(dispatchers, publisher)
	}
	var notifier notification.Dispatcher = dispatchers
	if cfg.RedisURL != "" {
		client, err := redisdedupe.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis error")
		}
		defer func() { _ = client.Close() }()
		notifier = redisdedupe.New(dispatchers, client, cfg.NotifyDedupTTL, logger)
	}

	engine := appBooking.NewEngine(store, notifier, logger)
	guard := appBooking.NewGuard(store, logger)
	sweeper := completion.NewSweeper(store, engine, logger)

	apiServer := httpapi.NewServer(engine, guard, sseHub, pool, logger)
	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx, cfg.SweepInterval, cfg.SweepBatch)
	})
	g.Go(func() error {
		<-gctx.Done()
		// Close event streams first so Shutdown is not held open by them.
		sseHub.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return
	}
	logger.Info().Msg("server stopped")
}
