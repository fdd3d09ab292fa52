package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/lifecycle"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/repository"
)

// pairingCodeAttempts bounds retries when a generated code collides.
const pairingCodeAttempts = 5

// NewPairingCode returns an 8-character uppercase code.
func NewPairingCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// JoinParams registers a student into a session by its join code.
type JoinParams struct {
	JoinCode           string
	FullName           string
	Email              string
	IPAddress          string
	BrowserFingerprint string
}

// Join creates a REGISTERED student with a fresh pairing code.
func (e *Engine) Join(ctx context.Context, p JoinParams) (*domain.Student, error) {
	code := strings.ToUpper(strings.TrimSpace(p.JoinCode))
	if err := domain.ValidateJoinCode(code); err != nil {
		return nil, domain.ErrInvalidArgument(err.Error())
	}
	name := strings.TrimSpace(p.FullName)
	if name == "" {
		return nil, domain.ErrInvalidArgument("full name is required")
	}
	email := domain.NormalizeEmail(p.Email)
	if err := domain.ValidateEmail(email); err != nil {
		return nil, domain.ErrInvalidArgument(err.Error())
	}

	es, err := e.store.FindSessionByJoinCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("find session by join code: %w", err)
	}
	if es == nil {
		return nil, domain.ErrNotFound("exam session", code)
	}

	var st *domain.Student
	for attempt := 1; ; attempt++ {
		st, err = e.insertStudent(ctx, es.ID, name, email, p)
		if !errors.Is(err, repository.ErrDuplicatePairingCode) || attempt == pairingCodeAttempts {
			break
		}
		e.logger.Warn("pairing code collision, retrying", slog.Int("attempt", attempt))
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info("student joined",
		slog.String("student_id", st.ID.String()),
		slog.String("session_id", st.SessionID.String()),
	)
	e.notifier.Notify(ctx, Change{Event: domain.EventStudentJoined, Student: st})
	return st, nil
}

func (e *Engine) insertStudent(ctx context.Context, sessionID uuid.UUID, name, email string, p JoinParams) (*domain.Student, error) {
	var st *domain.Student
	err := e.store.WithTx(ctx, func(tx repository.Tx) error {
		es, err := tx.FindSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("find exam session: %w", err)
		}
		if es == nil {
			return domain.ErrNotFound("exam session", sessionID.String())
		}
		now := e.now().UTC()
		if err := lifecycle.CheckJoinable(es, now); err != nil {
			return err
		}

		st = &domain.Student{
			ID:                 uuid.New(),
			SessionID:          es.ID,
			FullName:           name,
			Email:              email,
			Status:             domain.StudentRegistered,
			PairingCode:        e.codes(),
			IPAddress:          p.IPAddress,
			BrowserFingerprint: p.BrowserFingerprint,
			LastActivityAt:     &now,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.InsertStudent(ctx, st); err != nil {
			return err
		}
		return emit(ctx, tx, domain.NewStudentStatusEvent(domain.EventStudentJoined, st, "", now))
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}
