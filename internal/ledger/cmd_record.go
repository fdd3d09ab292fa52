package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/lifecycle"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/policy"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/repository"
)

// ReportParams is one violation report from a detector or watcher.
type ReportParams struct {
	StudentID uuid.UUID
	// SessionID is optional; when set it must be the student's session.
	SessionID   uuid.UUID
	Type        domain.ViolationType
	Description string
	Confidence  float64
	EvidenceRef string
	// ObservedAt is the reporter's clock. Acceptance and dedup always use
	// the engine clock; this is stored only when plausible for the session.
	ObservedAt time.Time
}

// RecordResult is the definitive answer given to a reporter. A suppressed
// report is a successful no-op, not an error.
type RecordResult struct {
	Accepted    bool
	Suppressed  bool
	Incident    *domain.Incident
	Student     *domain.Student
	Penalty     domain.Penalty
	BanEligible bool
	Guard       domain.GuardResult
}

// Record validates a report, applies the dedup window and, when accepted,
// appends a PENDING_REVIEW incident and applies its penalty atomically.
func (e *Engine) Record(ctx context.Context, p ReportParams) (*RecordResult, error) {
	if _, err := domain.ParseViolationType(string(p.Type)); err != nil {
		return nil, err
	}
	if err := domain.ValidateConfidence(p.Confidence); err != nil {
		return nil, domain.ErrInvalidArgument(err.Error())
	}
	if _, known := policy.SeverityOf(p.Type); !known {
		e.logger.Warn("unrecognized violation type scored as minor",
			slog.String("type", string(p.Type)),
			slog.String("student_id", p.StudentID.String()),
		)
	}

	at := e.now().UTC()

	var res RecordResult
	var session *domain.ExamSession
	err := e.store.WithTx(ctx, func(tx repository.Tx) error {
		st, err := lockStudent(ctx, tx, p.StudentID)
		if err != nil {
			return err
		}
		if p.SessionID != uuid.Nil && p.SessionID != st.SessionID {
			return domain.ErrNotFound("exam session", p.SessionID.String())
		}
		session, err = sessionOf(ctx, tx, st)
		if err != nil {
			return err
		}
		if err := lifecycle.CheckAcceptsReports(session); err != nil {
			return err
		}

		inc := &domain.Incident{
			ID:          uuid.New(),
			StudentID:   st.ID,
			SessionID:   st.SessionID,
			Type:        p.Type,
			Description: p.Description,
			Confidence:  p.Confidence,
			EvidenceRef: p.EvidenceRef,
			Status:      domain.IncidentPendingReview,
			DetectedAt:  at,
			ObservedAt:  e.observedAt(p, session, at),
			CreatedAt:   e.now().UTC(),
		}
		from, to := e.window.Bounds(at)
		inserted, err := tx.InsertIncidentUnlessRecent(ctx, inc, from, to)
		if err != nil {
			return fmt.Errorf("record incident: %w", err)
		}
		res.Guard = e.window.Verdict(inserted)
		if !inserted {
			res.Suppressed = true
			res.Student = st
			return nil
		}

		penalty := policy.PenaltyFor(inc.Type, inc.Confidence)
		updated, err := tx.ApplyPenalty(ctx, st.ID, penalty)
		if err != nil {
			return fmt.Errorf("apply penalty: %w", err)
		}
		if updated == nil {
			return domain.ErrNotFound("student", st.ID.String())
		}

		drafts := []domain.OutboxDraft{domain.NewIncidentRecordedEvent(inc, penalty, updated)}
		eligible := policy.BanEligible(updated.StrikeCount, session.MaxWarnings)
		if eligible && !policy.BanEligible(st.StrikeCount, session.MaxWarnings) {
			drafts = append(drafts, domain.NewBanEligibleEvent(updated, session.MaxWarnings, inc.CreatedAt))
		}
		if err := emit(ctx, tx, drafts...); err != nil {
			return err
		}

		res = RecordResult{
			Accepted:    true,
			Incident:    inc,
			Student:     updated,
			Penalty:     penalty,
			BanEligible: eligible,
			Guard:       res.Guard,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Suppressed {
		e.logger.Debug("report suppressed by dedup window",
			slog.String("student_id", p.StudentID.String()),
			slog.String("type", string(p.Type)),
		)
		return &res, nil
	}

	e.logger.Info("incident recorded",
		slog.String("incident_id", res.Incident.ID.String()),
		slog.String("student_id", res.Student.ID.String()),
		slog.String("type", string(res.Incident.Type)),
		slog.Float64("score_delta", res.Penalty.Score.Points()),
		slog.Float64("suspicion_score", res.Student.SuspicionScore.Points()),
		slog.Int("strikes", res.Student.StrikeCount),
	)
	if res.BanEligible {
		e.logger.Warn("student eligible for termination",
			slog.String("student_id", res.Student.ID.String()),
			slog.Int("strikes", res.Student.StrikeCount),
			slog.Int("max_warnings", session.MaxWarnings),
		)
	}
	e.notifier.Notify(ctx, Change{Event: domain.EventIncidentRecorded, Student: res.Student, Session: session, Incident: res.Incident})
	return &res, nil
}

// MaxObservedSkew is how far ahead of the engine clock a reporter's
// timestamp may run before it is discarded.
const MaxObservedSkew = 30 * time.Second

// observedAt returns the reporter's timestamp if it falls within
// [session start, at+MaxObservedSkew], nil otherwise.
func (e *Engine) observedAt(p ReportParams, es *domain.ExamSession, at time.Time) *time.Time {
	if p.ObservedAt.IsZero() {
		return nil
	}
	obs := p.ObservedAt.UTC()
	if obs.Before(es.StartTime) || obs.After(at.Add(MaxObservedSkew)) {
		e.logger.Warn("reporter timestamp out of range, discarded",
			slog.String("student_id", p.StudentID.String()),
			slog.Time("observed_at", obs),
			slog.Time("accepted_at", at),
		)
		return nil
	}
	return &obs
}
