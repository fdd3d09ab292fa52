package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/lifecycle"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/repository"
)

// DefaultTerminationReason is recorded when a proctor gives none.
const DefaultTerminationReason = "terminated by proctor"

var statusEvents = map[domain.StudentStatus]domain.EventType{
	domain.StudentInProgress: domain.EventStudentStarted,
	domain.StudentSubmitted:  domain.EventStudentSubmitted,
	domain.StudentTerminated: domain.EventStudentTerminated,
}

// Start moves a registered student to IN_PROGRESS. Idempotent.
func (e *Engine) Start(ctx context.Context, studentID uuid.UUID) (*domain.Student, error) {
	return e.transition(ctx, studentID, domain.StudentInProgress, "")
}

// Submit moves a student to SUBMITTED. Idempotent when already submitted;
// fails with PreconditionFailed once terminated.
func (e *Engine) Submit(ctx context.Context, studentID uuid.UUID) (*domain.Student, error) {
	return e.transition(ctx, studentID, domain.StudentSubmitted, "")
}

// Terminate bans a student from any state. Termination is never automatic:
// ban eligibility only flags the student for a proctor to act on.
func (e *Engine) Terminate(ctx context.Context, studentID uuid.UUID, reason string) (*domain.Student, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultTerminationReason
	}
	return e.transition(ctx, studentID, domain.StudentTerminated, reason)
}

// Transition moves a student to an arbitrary target status, rejecting
// unknown targets with InvalidArgument.
func (e *Engine) Transition(ctx context.Context, studentID uuid.UUID, target domain.StudentStatus, reason string) (*domain.Student, error) {
	if target == domain.StudentTerminated {
		return e.Terminate(ctx, studentID, reason)
	}
	return e.transition(ctx, studentID, target, "")
}

func (e *Engine) transition(ctx context.Context, studentID uuid.UUID, target domain.StudentStatus, reason string) (*domain.Student, error) {
	var out *domain.Student
	var changed bool
	err := e.store.WithTx(ctx, func(tx repository.Tx) error {
		st, err := lockStudent(ctx, tx, studentID)
		if err != nil {
			return err
		}
		changed, err = lifecycle.StudentTransition(st.Status, target)
		if err != nil {
			return err
		}
		if !changed {
			out = st
			return nil
		}

		now := e.now().UTC()
		if target == domain.StudentTerminated {
			out, err = tx.BanStudent(ctx, st.ID, reason, now)
		} else {
			out, err = tx.SetStudentStatus(ctx, st.ID, target, now)
		}
		if err != nil {
			return fmt.Errorf("set student status: %w", err)
		}
		if out == nil {
			return domain.ErrNotFound("student", st.ID.String())
		}
		return emit(ctx, tx, domain.NewStudentStatusEvent(statusEvents[target], out, reason, now))
	})
	if err != nil {
		return nil, err
	}

	if changed {
		attrs := []any{
			slog.String("student_id", out.ID.String()),
			slog.String("status", string(out.Status)),
		}
		if reason != "" {
			attrs = append(attrs, slog.String("reason", reason))
		}
		e.logger.Info("student status changed", attrs...)
		e.notifier.Notify(ctx, Change{Event: statusEvents[target], Student: out})
	}
	return out, nil
}

// Heartbeat records client liveness.
func (e *Engine) Heartbeat(ctx context.Context, studentID uuid.UUID) (*domain.Student, error) {
	var out *domain.Student
	err := e.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.TouchActivity(ctx, studentID, e.now().UTC())
		if err != nil {
			return fmt.Errorf("touch activity: %w", err)
		}
		if out == nil {
			return domain.ErrNotFound("student", studentID.String())
		}
		return nil
	})
	return out, err
}
