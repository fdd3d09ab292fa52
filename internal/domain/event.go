package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventIncidentRecorded    EventType = "proctor.incident.recorded"
	EventIncidentAdjudicated EventType = "proctor.incident.adjudicated"
	EventStudentBanEligible  EventType = "proctor.student.ban_eligible"
	EventStudentStarted      EventType = "proctor.student.started"
	EventStudentSubmitted    EventType = "proctor.student.submitted"
	EventStudentTerminated   EventType = "proctor.student.terminated"
	EventStudentJoined       EventType = "proctor.student.joined"
	EventMobilePaired        EventType = "proctor.mobile.paired"
	EventSessionCreated      EventType = "proctor.session.created"
	EventSessionPublished    EventType = "proctor.session.published"
	EventSessionClosed       EventType = "proctor.session.closed"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateStudent  AggregateType = "student"
	AggregateSession  AggregateType = "session"
	AggregateIncident AggregateType = "incident"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// OutboxRecord is a stored outbox row awaiting publication.
type OutboxRecord struct {
	Seq int64 `json:"seq"`
	OutboxDraft
}

// GuardResult is the verdict of an admission guard.
type GuardResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Guard   string `json:"guard,omitempty"` // which guard blocked
}
