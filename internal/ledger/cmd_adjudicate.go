package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/lifecycle"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/policy"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/repository"
)

// AdjudicateResult carries the reviewed incident and the student's counters
// after any revert or reapply.
type AdjudicateResult struct {
	Incident *domain.Incident
	Student  *domain.Student
	Effect   lifecycle.Effect
	Changed  bool
}

// Adjudicate moves an incident to target. Dismissing reverts the incident's
// penalty and reinstating a dismissed incident reapplies it; each happens
// exactly once per transition. Same-status requests are no-ops.
func (e *Engine) Adjudicate(ctx context.Context, incidentID uuid.UUID, target domain.IncidentStatus) (*AdjudicateResult, error) {
	if _, err := domain.ParseIncidentStatus(string(target)); err != nil {
		return nil, err
	}

	var res AdjudicateResult
	var from domain.IncidentStatus
	err := e.store.WithTx(ctx, func(tx repository.Tx) error {
		inc, err := tx.LockIncident(ctx, incidentID)
		if err != nil {
			return fmt.Errorf("lock incident: %w", err)
		}
		if inc == nil {
			return domain.ErrNotFound("incident", incidentID.String())
		}
		from = inc.Status

		effect, changed, err := lifecycle.IncidentTransition(inc.Status, target)
		if err != nil {
			return err
		}
		st, err := lockStudent(ctx, tx, inc.StudentID)
		if err != nil {
			return err
		}
		if !changed {
			res = AdjudicateResult{Incident: inc, Student: st, Effect: lifecycle.EffectNone}
			return nil
		}

		// The delta is recomputed from the incident so apply and revert match exactly.
		delta := lifecycle.PenaltyForEffect(effect, policy.PenaltyFor(inc.Type, inc.Confidence))
		if !delta.IsZero() {
			st, err = tx.ApplyPenalty(ctx, st.ID, delta)
			if err != nil {
				return fmt.Errorf("apply review penalty: %w", err)
			}
			if st == nil {
				return domain.ErrNotFound("student", inc.StudentID.String())
			}
		}

		now := e.now().UTC()
		reviewed, err := tx.SetIncidentStatus(ctx, inc.ID, target, now)
		if err != nil {
			return fmt.Errorf("set incident status: %w", err)
		}
		if reviewed == nil {
			return domain.ErrNotFound("incident", inc.ID.String())
		}
		if err := emit(ctx, tx, domain.NewIncidentAdjudicatedEvent(reviewed, from, st, now)); err != nil {
			return err
		}

		res = AdjudicateResult{Incident: reviewed, Student: st, Effect: effect, Changed: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Changed {
		e.logger.Info("incident adjudicated",
			slog.String("incident_id", incidentID.String()),
			slog.String("from", string(from)),
			slog.String("to", string(target)),
			slog.String("effect", string(res.Effect)),
			slog.Float64("suspicion_score", res.Student.SuspicionScore.Points()),
			slog.Int("strikes", res.Student.StrikeCount),
		)
		e.notifier.Notify(ctx, Change{Event: domain.EventIncidentAdjudicated, Student: res.Student, Incident: res.Incident})
	}
	return &res, nil
}
