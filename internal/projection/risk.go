package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/policy"
)

// RiskSnapshot is a cached student status for the live dashboard.
type RiskSnapshot struct {
	domain.StudentStatusView
	MaxWarnings int       `json:"maxWarnings,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// riskTTL outlives any single exam sitting.
const riskTTL = 12 * time.Hour

func riskKey(studentID uuid.UUID) string {
	return fmt.Sprintf("projection:risk:%s", studentID)
}

// UpdateRisk caches a student's risk snapshot. A zero UpdatedAt is stamped now.
func UpdateRisk(ctx context.Context, store Store, s RiskSnapshot) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	return SetJSON(ctx, store, riskKey(s.StudentID), s, riskTTL)
}

// GetRisk retrieves a cached risk snapshot. Misses wrap ErrMiss.
func GetRisk(ctx context.Context, store Store, studentID uuid.UUID) (*RiskSnapshot, error) {
	var s RiskSnapshot
	if err := GetJSON(ctx, store, riskKey(studentID), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// InvalidateRisk removes a student's cached snapshot.
func InvalidateRisk(ctx context.Context, store Store, studentID uuid.UUID) error {
	return store.Delete(ctx, riskKey(studentID))
}

// riskEvent is the subset of event payload fields the projection reads.
type riskEvent struct {
	StudentID      uuid.UUID            `json:"student_id"`
	SessionID      uuid.UUID            `json:"session_id"`
	Status         domain.StudentStatus `json:"status"`
	SuspicionScore *domain.Score        `json:"suspicion_score"`
	StrikeCount    *int                 `json:"strike_count"`
	MaxWarnings    *int                 `json:"max_warnings"`
}

// ApplyEvent folds one relayed domain event into the student's snapshot.
// Events older than the snapshot are ignored so redelivery cannot roll
// counters back. It reports whether the snapshot changed.
func ApplyEvent(ctx context.Context, store Store, evt domain.EventType, payload []byte, at time.Time) (bool, error) {
	var body riskEvent
	if err := json.Unmarshal(payload, &body); err != nil {
		return false, fmt.Errorf("decode %s payload: %w", evt, err)
	}
	if body.StudentID == uuid.Nil {
		return false, nil
	}

	snap, err := GetRisk(ctx, store, body.StudentID)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			return false, err
		}
		snap = &RiskSnapshot{StudentStatusView: domain.StudentStatusView{
			StudentID: body.StudentID,
			SessionID: body.SessionID,
			Status:    domain.StudentRegistered,
		}}
	}
	if !snap.UpdatedAt.IsZero() && at.Before(snap.UpdatedAt) {
		return false, nil
	}

	if body.SessionID != uuid.Nil {
		snap.SessionID = body.SessionID
	}
	if body.SuspicionScore != nil {
		snap.SuspicionScore = *body.SuspicionScore
	}
	if body.StrikeCount != nil {
		snap.StrikeCount = *body.StrikeCount
	}
	if body.MaxWarnings != nil {
		snap.MaxWarnings = *body.MaxWarnings
	}

	switch evt {
	case domain.EventStudentJoined, domain.EventStudentStarted, domain.EventStudentSubmitted:
		if body.Status != "" {
			snap.Status = body.Status
		}
	case domain.EventStudentTerminated:
		snap.Status = domain.StudentTerminated
		snap.Banned = true
	case domain.EventMobilePaired:
		snap.MobileConnected = true
	case domain.EventIncidentRecorded, domain.EventIncidentAdjudicated, domain.EventStudentBanEligible:
	default:
		return false, nil
	}

	risk := policy.EvaluateStudentRisk(policy.StudentRiskSignals{
		SuspicionScore: snap.SuspicionScore,
		StrikeCount:    snap.StrikeCount,
		MaxWarnings:    snap.MaxWarnings,
	})
	snap.RiskLevel = string(risk.Level)
	snap.RiskFlags = risk.Flags
	snap.BanEligible = risk.BanEligible || evt == domain.EventStudentBanEligible
	snap.UpdatedAt = at

	if err := UpdateRisk(ctx, store, *snap); err != nil {
		return false, err
	}
	return true, nil
}
