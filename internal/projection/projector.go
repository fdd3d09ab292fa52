package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/infra"
)

// StudentEvents lists the relayed events that move a risk snapshot.
var StudentEvents = []domain.EventType{
	domain.EventStudentJoined,
	domain.EventStudentStarted,
	domain.EventStudentSubmitted,
	domain.EventStudentTerminated,
	domain.EventStudentBanEligible,
	domain.EventMobilePaired,
	domain.EventIncidentRecorded,
	domain.EventIncidentAdjudicated,
}

// Topics returns the Kafka topics carrying StudentEvents under prefix.
func Topics(prefix string) []string {
	out := make([]string, 0, len(StudentEvents))
	for _, evt := range StudentEvents {
		out = append(out, infra.TopicFor(prefix, evt))
	}
	return out
}

// Projector folds relayed outbox messages into risk snapshots.
type Projector struct {
	store  Store
	logger *slog.Logger
}

// NewProjector creates a projector writing to store.
func NewProjector(store Store, logger *slog.Logger) *Projector {
	return &Projector{store: store, logger: logger}
}

// Handle decodes one outbox envelope and applies it. A malformed envelope is
// an error; the caller decides whether to skip it.
func (p *Projector) Handle(ctx context.Context, value []byte) (bool, error) {
	var msg infra.OutboxMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return false, fmt.Errorf("decode envelope: %w", err)
	}
	changed, err := ApplyEvent(ctx, p.store, domain.EventType(msg.EventType), msg.Payload, msg.OccurredAt)
	if err != nil {
		return false, fmt.Errorf("apply %s %s: %w", msg.EventType, msg.EventID, err)
	}
	p.logger.Debug("risk event applied",
		"event_id", msg.EventID,
		"event_type", msg.EventType,
		"changed", changed,
	)
	return changed, nil
}
