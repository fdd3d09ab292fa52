package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/infra"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/projection"
)

// risk-projector consumes relayed student events and keeps the Redis risk
// snapshots current for dashboards running outside the API process.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("risk projector failed", "error", err)
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
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}

	store, err := projection.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer store.Close()
	logger.Info("risk projector connected to redis")

	consumer := infra.NewKafkaConsumer(brokers, projection.Topics(cfg.KafkaTopicPrefix), cfg.KafkaGroupID, logger)
	defer consumer.Close()

	projector := projection.NewProjector(store, logger)
	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				logger.Info("risk projector shutting down")
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		// A bad message is logged and skipped; the snapshot heals on the
		// student's next event or on a status read.
		if _, err := projector.Handle(ctx, msg.Value); err != nil {
			logger.Error("risk event dropped",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}
