package repository

import (
	"context"
	"fmt"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
)

// InsertOutbox writes an outbox event using the camelCase column names.
func (t *pgTx) InsertOutbox(ctx context.Context, draft domain.OutboxDraft) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO event_outbox
		  ("eventId", "aggregateType", "aggregateId", "eventType", "partitionKey", "headers", "payload", "occurredAt")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		draft.EventID,
		string(draft.AggregateType),
		draft.AggregateID,
		string(draft.EventType),
		draft.PartitionKey,
		draft.Headers,
		draft.Payload,
		draft.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (s *PostgresStore) FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxRecord, error) {
	var lim *int // NULL means no limit
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT "id", "eventId", "aggregateType", "aggregateId", "eventType",
		       "partitionKey", "headers", "payload", "occurredAt"
		FROM event_outbox
		ORDER BY "id" ASC
		LIMIT $1`, lim)
	if err != nil {
		return nil, fmt.Errorf("fetch unpublished events: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxRecord
	for rows.Next() {
		var r domain.OutboxRecord
		var aggType, evtType string
		err := rows.Scan(&r.Seq, &r.EventID, &aggType, &r.AggregateID,
			&evtType, &r.PartitionKey, &r.Headers, &r.Payload, &r.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		r.AggregateType = domain.AggregateType(aggType)
		r.EventType = domain.EventType(evtType)
		events = append(events, r)
	}
	return events, rows.Err()
}

func (s *PostgresStore) MarkPublished(ctx context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM event_outbox WHERE "id" = ANY($1)`, seqs)
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}
