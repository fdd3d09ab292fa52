package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/app"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/auth"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/guard"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/infra"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/ledger"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/projection"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/referee"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/repository"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/service"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/sweeper"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	infra.LoadDotEnv()
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Store
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Risk projection: Redis when enabled, else process-local.
	var cache projection.Store = projection.NewInMemoryStore()
	if cfg.RedisEnabled {
		rs, err := projection.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rs.Close()
		cache = rs
		logger.Info("connected to redis")
	}

	// Engine and live fan-out
	hub := infra.NewWSHub(cfg.AllowedOrigins(), logger)
	notifier := service.NewLiveNotifier(hub, cache, logger)
	engine := ledger.NewEngine(store, guard.NewDedupWindow(cfg.DedupWindow), notifier, logger)
	ref := referee.New(engine, cfg.RefereeFrameThreshold, logger)

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTProctorExpiry, cfg.JWTStudentExpiry)
	reporters := auth.NewReporterAuthManager(cfg.ReporterSecret)

	r := app.NewRouter(app.RouterDeps{
		Store:       store,
		Engine:      engine,
		Cache:       cache,
		Hub:         hub,
		Referee:     ref,
		JWTMgr:      jwtMgr,
		Reporters:   reporters,
		Logger:      logger,
		CORSOrigins: cfg.CORSAllowedOrigins,
	})

	// Outbox relay
	producer := infra.NewKafkaProducer(cfg.Brokers(), cfg.KafkaEnabled, logger)
	defer producer.Close()
	poller := infra.NewOutboxPoller(store, producer, guard.NewCircuitBreaker(5, 30*time.Second), cfg, logger)

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api server starting", "addr", addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.New(engine, cfg.SweepInterval, logger).Run(gctx)
	})
	// The poller always runs; a disabled producer drains the outbox unrelayed.
	if !producer.Enabled() {
		logger.Warn("kafka disabled; outbox events will be drained without relay")
	}
	g.Go(func() error { return poller.Run(gctx) })

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		hub.Shutdown(shutdownCtx)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}

// openStore selects the store driver. The memory driver keeps all state in
// process and is meant for local runs and demos.
func openStore(ctx context.Context, cfg *infra.Config, logger *slog.Logger) (repository.Store, func(), error) {
	if cfg.StoreDriver == infra.StoreDriverMemory {
		logger.Warn("using in-memory store; state is lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	}

	if cfg.MigrateOnStart {
		if err := infra.RunMigrations(cfg.DSN(), cfg.MigrationsDir, logger); err != nil {
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	logger.Info("connected to postgres")
	return repository.NewPostgresStore(pool), pool.Close, nil
}
