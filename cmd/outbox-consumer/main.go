package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/guard"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/infra"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/repository"
)

// outbox-consumer relays event_outbox rows to Kafka when the API runs
// without its embedded poller.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outbox consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra.LoadDotEnv()
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.StoreDriver != infra.StoreDriverPostgres {
		return fmt.Errorf("outbox-consumer requires STORE_DRIVER=%s", infra.StoreDriverPostgres)
	}
	if !cfg.KafkaEnabled {
		return fmt.Errorf("outbox-consumer requires KAFKA_ENABLED=true")
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("outbox-consumer connected to postgres")

	producer := infra.NewKafkaProducer(cfg.Brokers(), true, logger)
	defer producer.Close()

	poller := infra.NewOutboxPoller(
		repository.NewPostgresStore(pool),
		producer,
		guard.NewCircuitBreaker(5, 30*time.Second),
		cfg,
		logger,
	)
	return poller.Run(ctx)
}
