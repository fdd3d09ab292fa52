package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/lifecycle"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/repository"
)

const joinCodeAttempts = 5

// NewJoinCode returns a 6-character uppercase join code.
func NewJoinCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

// CreateSessionParams describes a new exam session.
type CreateSessionParams struct {
	OwnerID                uuid.UUID
	Title                  string
	SubjectCode            string
	Instructions           string
	StartTime              time.Time
	EndTime                time.Time
	MaxWarnings            *int
	Sensitivity            domain.Sensitivity
	MobileSentinelRequired bool
}

// CreateSession creates an active, unpublished session with a unique join code.
func (e *Engine) CreateSession(ctx context.Context, p CreateSessionParams) (*domain.ExamSession, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, domain.ErrInvalidArgument("title is required")
	}
	if p.StartTime.IsZero() || p.EndTime.IsZero() {
		return nil, domain.ErrInvalidArgument("start and end time are required")
	}
	if !p.EndTime.After(p.StartTime) {
		return nil, domain.ErrInvalidArgument("end time must be after start time")
	}
	maxWarnings := domain.DefaultMaxWarnings
	if p.MaxWarnings != nil {
		if *p.MaxWarnings < 0 {
			return nil, domain.ErrInvalidArgument("max warnings must not be negative")
		}
		maxWarnings = *p.MaxWarnings
	}
	sens := p.Sensitivity
	if sens == "" {
		sens = domain.SensitivityMedium
	}
	if !sens.Valid() {
		return nil, domain.ErrInvalidArgument(fmt.Sprintf("unknown sensitivity %q", sens))
	}

	var es *domain.ExamSession
	var err error
	for attempt := 1; ; attempt++ {
		now := e.now().UTC()
		es = &domain.ExamSession{
			ID:                     uuid.New(),
			OwnerID:                p.OwnerID,
			Title:                  title,
			SubjectCode:            strings.TrimSpace(p.SubjectCode),
			JoinCode:               e.joinCodes(),
			Instructions:           p.Instructions,
			StartTime:              p.StartTime.UTC(),
			EndTime:                p.EndTime.UTC(),
			Active:                 true,
			MaxWarnings:            maxWarnings,
			Sensitivity:            sens,
			MobileSentinelRequired: p.MobileSentinelRequired,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		err = e.store.WithTx(ctx, func(tx repository.Tx) error {
			if err := tx.InsertSession(ctx, es); err != nil {
				return err
			}
			return emit(ctx, tx, domain.NewSessionEvent(domain.EventSessionCreated, es, now))
		})
		if !errors.Is(err, repository.ErrDuplicateJoinCode) || attempt == joinCodeAttempts {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info("exam session created",
		slog.String("session_id", es.ID.String()),
		slog.String("join_code", es.JoinCode),
	)
	e.notifier.Notify(ctx, Change{Event: domain.EventSessionCreated, Session: es})
	return es, nil
}

// PublishSession exposes a session to students. Idempotent.
func (e *Engine) PublishSession(ctx context.Context, sessionID uuid.UUID) (*domain.ExamSession, error) {
	var es *domain.ExamSession
	var changed bool
	err := e.store.WithTx(ctx, func(tx repository.Tx) error {
		cur, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("lock exam session: %w", err)
		}
		if cur == nil {
			return domain.ErrNotFound("exam session", sessionID.String())
		}
		changed, err = lifecycle.CheckPublishable(cur)
		if err != nil {
			return err
		}
		if !changed {
			es = cur
			return nil
		}
		es, err = tx.SetSessionPublished(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("publish exam session: %w", err)
		}
		if es == nil {
			return domain.ErrNotFound("exam session", sessionID.String())
		}
		return emit(ctx, tx, domain.NewSessionEvent(domain.EventSessionPublished, es, e.now().UTC()))
	})
	if err != nil {
		return nil, err
	}
	if changed {
		e.logger.Info("exam session published", slog.String("session_id", sessionID.String()))
		e.notifier.Notify(ctx, Change{Event: domain.EventSessionPublished, Session: es})
	}
	return es, nil
}

// CloseSession deactivates a session. Closing happens exactly once; closing
// an inactive session returns it unchanged.
func (e *Engine) CloseSession(ctx context.Context, sessionID uuid.UUID) (*domain.ExamSession, error) {
	es, closed, err := e.closeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if closed {
		e.logger.Info("exam session closed", slog.String("session_id", sessionID.String()))
	}
	return es, nil
}

// CloseIfActive is the sweeper's single-session step. It reports whether this
// call performed the close.
func (e *Engine) CloseIfActive(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	_, closed, err := e.closeSession(ctx, sessionID)
	return closed, err
}

func (e *Engine) closeSession(ctx context.Context, sessionID uuid.UUID) (*domain.ExamSession, bool, error) {
	var es *domain.ExamSession
	var closed bool
	err := e.store.WithTx(ctx, func(tx repository.Tx) error {
		cur, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("lock exam session: %w", err)
		}
		if cur == nil {
			return domain.ErrNotFound("exam session", sessionID.String())
		}
		if !lifecycle.CheckClosable(cur) {
			es = cur
			return nil
		}
		now := e.now().UTC()
		es, err = tx.CloseSessionIfActive(ctx, sessionID, now)
		if err != nil {
			return fmt.Errorf("close exam session: %w", err)
		}
		if es == nil {
			es = cur
			return nil
		}
		closed = true
		return emit(ctx, tx, domain.NewSessionEvent(domain.EventSessionClosed, es, now))
	})
	if err != nil {
		return nil, false, err
	}
	if closed {
		e.notifier.Notify(ctx, Change{Event: domain.EventSessionClosed, Session: es})
	}
	return es, closed, nil
}

// Session returns a session by id.
func (e *Engine) Session(ctx context.Context, sessionID uuid.UUID) (*domain.ExamSession, error) {
	return e.findSession(ctx, sessionID)
}

// ActiveSessions lists sessions still accepting reports, soonest end first.
func (e *Engine) ActiveSessions(ctx context.Context) ([]domain.ExamSession, error) {
	out, err := e.store.ListActiveSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return out, nil
}

// SessionsOwnedBy lists a proctor's sessions, latest start first.
func (e *Engine) SessionsOwnedBy(ctx context.Context, ownerID uuid.UUID) ([]domain.ExamSession, error) {
	out, err := e.store.ListSessionsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owner sessions: %w", err)
	}
	return out, nil
}

// ExpiredSessions lists active sessions whose end time is before now.
func (e *Engine) ExpiredSessions(ctx context.Context) ([]domain.ExamSession, error) {
	out, err := e.store.ListExpiredSessions(ctx, e.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	return out, nil
}

// Roster lists a session's students in join order.
func (e *Engine) Roster(ctx context.Context, sessionID uuid.UUID) ([]domain.Student, error) {
	if _, err := e.findSession(ctx, sessionID); err != nil {
		return nil, err
	}
	out, err := e.store.ListStudentsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return out, nil
}
