package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/guard"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/repository"
)

// Publisher sends one message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

const publisherCircuit = "kafka"

// TopicFor maps an event type to its topic, e.g.
// proctor.incident.recorded -> <prefix>.incident.recorded.
func TopicFor(prefix string, evt domain.EventType) string {
	return prefix + "." + strings.TrimPrefix(string(evt), "proctor.")
}

// OutboxMessage is the envelope written to Kafka.
type OutboxMessage struct {
	EventID       string          `json:"event_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// OutboxPoller relays event_outbox rows to Kafka in sequence order. A publish
// failure stops the batch so later events of the same student are not sent
// ahead of it.
type OutboxPoller struct {
	store     repository.OutboxStore
	producer  Publisher
	breaker   *guard.CircuitBreaker
	logger    *slog.Logger
	prefix    string
	interval  time.Duration
	batchSize int
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(store repository.OutboxStore, producer Publisher, breaker *guard.CircuitBreaker, cfg *Config, logger *slog.Logger) *OutboxPoller {
	if breaker == nil {
		breaker = guard.NewCircuitBreaker(5, 30*time.Second)
	}
	interval := cfg.OutboxPollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	batch := cfg.OutboxBatchSize
	if batch <= 0 {
		batch = 100
	}
	return &OutboxPoller{
		store:     store,
		producer:  producer,
		breaker:   breaker,
		logger:    logger,
		prefix:    cfg.KafkaTopicPrefix,
		interval:  interval,
		batchSize: batch,
	}
}

// Run polls until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) error {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox poller stopped")
			return nil
		case <-ticker.C:
			if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("outbox poll error", "error", err)
			}
		}
	}
}

// PollOnce relays one batch and returns how many events were published.
func (p *OutboxPoller) PollOnce(ctx context.Context) (int, error) {
	events, err := p.store.FetchUnpublished(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch outbox: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	done := make([]int64, 0, len(events))
	var pubErr error
	for _, e := range events {
		msg, err := json.Marshal(OutboxMessage{
			EventID:       e.EventID.String(),
			AggregateType: string(e.AggregateType),
			AggregateID:   e.AggregateID,
			EventType:     string(e.EventType),
			Payload:       e.Payload,
			OccurredAt:    e.OccurredAt,
		})
		if err != nil {
			pubErr = fmt.Errorf("marshal event %s: %w", e.EventID, err)
			break
		}

		topic := TopicFor(p.prefix, e.EventType)
		err = p.breaker.Do(ctx, publisherCircuit, func(ctx context.Context) error {
			return p.producer.Publish(ctx, topic, []byte(e.PartitionKey), msg)
		})
		if err != nil {
			pubErr = fmt.Errorf("publish event %s: %w", e.EventID, err)
			break
		}
		done = append(done, e.Seq)
	}

	if len(done) > 0 {
		if err := p.store.MarkPublished(ctx, done); err != nil {
			return 0, fmt.Errorf("mark published: %w", err)
		}
		p.logger.Debug("outbox poll complete", "published", len(done))
	}
	return len(done), pubErr
}
