package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

func newDraft(agg AggregateType, aggID uuid.UUID, partition uuid.UUID, evt EventType, body any, at time.Time) OutboxDraft {
	payload, _ := json.Marshal(body)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: agg,
		AggregateID:   aggID.String(),
		EventType:     evt,
		PartitionKey:  partition.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    at,
	}
}

// NewIncidentRecordedEvent is emitted when a report is accepted into the ledger.
// Events are partitioned by student so consumers see one student's history in order.
func NewIncidentRecordedEvent(inc *Incident, applied Penalty, st *Student) OutboxDraft {
	return newDraft(AggregateIncident, inc.ID, inc.StudentID, EventIncidentRecorded, map[string]any{
		"incident_id":     inc.ID.String(),
		"student_id":      inc.StudentID.String(),
		"session_id":      inc.SessionID.String(),
		"type":            inc.Type,
		"confidence":      inc.Confidence,
		"score_delta":     applied.Score,
		"suspicion_score": st.SuspicionScore,
		"strike_count":    st.StrikeCount,
		"detected_at":     inc.DetectedAt,
	}, inc.CreatedAt)
}

// NewIncidentAdjudicatedEvent is emitted on every effective review transition.
func NewIncidentAdjudicatedEvent(inc *Incident, from IncidentStatus, st *Student, at time.Time) OutboxDraft {
	return newDraft(AggregateIncident, inc.ID, inc.StudentID, EventIncidentAdjudicated, map[string]any{
		"incident_id":     inc.ID.String(),
		"student_id":      inc.StudentID.String(),
		"from":            from,
		"to":              inc.Status,
		"suspicion_score": st.SuspicionScore,
		"strike_count":    st.StrikeCount,
	}, at)
}

// NewBanEligibleEvent flags a student whose strikes exceed the session limit.
func NewBanEligibleEvent(st *Student, maxWarnings int, at time.Time) OutboxDraft {
	return newDraft(AggregateStudent, st.ID, st.ID, EventStudentBanEligible, map[string]any{
		"student_id":   st.ID.String(),
		"session_id":   st.SessionID.String(),
		"strike_count": st.StrikeCount,
		"max_warnings": maxWarnings,
	}, at)
}

// NewStudentStatusEvent is emitted for joined, started, submitted and terminated transitions.
func NewStudentStatusEvent(evt EventType, st *Student, reason string, at time.Time) OutboxDraft {
	body := map[string]any{
		"student_id": st.ID.String(),
		"session_id": st.SessionID.String(),
		"status":     st.Status,
	}
	if reason != "" {
		body["reason"] = reason
	}
	return newDraft(AggregateStudent, st.ID, st.ID, evt, body, at)
}

// NewMobilePairedEvent is emitted the first time a student's pairing code is redeemed.
func NewMobilePairedEvent(st *Student, at time.Time) OutboxDraft {
	return newDraft(AggregateStudent, st.ID, st.ID, EventMobilePaired, map[string]any{
		"student_id": st.ID.String(),
		"session_id": st.SessionID.String(),
	}, at)
}

// NewSessionEvent is emitted for session created, published and closed transitions.
func NewSessionEvent(evt EventType, s *ExamSession, at time.Time) OutboxDraft {
	return newDraft(AggregateSession, s.ID, s.ID, evt, map[string]any{
		"session_id": s.ID.String(),
		"join_code":  s.JoinCode,
		"active":     s.Active,
		"published":  s.Published,
		"end_time":   s.EndTime,
	}, at)
}
