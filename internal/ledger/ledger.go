// Package ledger is the incident ingestion and risk-scoring engine. Every
// mutation of a student's counters or status goes through an Engine command.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/guard"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/repository"
)

// Change describes a committed mutation for live subscribers.
type Change struct {
	Event    domain.EventType
	Student  *domain.Student
	Session  *domain.ExamSession
	Incident *domain.Incident
}

// Notifier receives changes after their transaction commits. Implementations
// must not block; delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, c Change)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Change) {}

// Engine runs every command in three steps:
//  1. LockStudent: row lock that serializes writers on one student
//  2. conditional insert or server-side counter arithmetic
//  3. outbox event in the same transaction, then Notify after commit
type Engine struct {
	store     repository.Store
	window    guard.DedupWindow
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
	codes     func() string
	joinCodes func() string
}

// NewEngine creates an engine over store. notifier may be nil.
func NewEngine(store repository.Store, window guard.DedupWindow, notifier Notifier, logger *slog.Logger) *Engine {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		window:    window,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		codes:     NewPairingCode,
		joinCodes: NewJoinCode,
	}
}

// WithClock replaces the engine clock. Used by tests and replays.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// lockStudent acquires the student's row lock. Must be called within a transaction.
func lockStudent(ctx context.Context, tx repository.Tx, id uuid.UUID) (*domain.Student, error) {
	st, err := tx.LockStudent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lock student: %w", err)
	}
	if st == nil {
		return nil, domain.ErrNotFound("student", id.String())
	}
	return st, nil
}

func sessionOf(ctx context.Context, tx repository.Tx, st *domain.Student) (*domain.ExamSession, error) {
	es, err := tx.FindSession(ctx, st.SessionID)
	if err != nil {
		return nil, fmt.Errorf("find exam session: %w", err)
	}
	if es == nil {
		return nil, domain.ErrNotFound("exam session", st.SessionID.String())
	}
	return es, nil
}

// emit writes outbox events within the caller's transaction.
func emit(ctx context.Context, tx repository.Tx, drafts ...domain.OutboxDraft) error {
	for _, d := range drafts {
		if err := tx.InsertOutbox(ctx, d); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
	}
	return nil
}
