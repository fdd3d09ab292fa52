package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so queries work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Sentinel conflicts for generated codes, so callers can retry with a fresh code.
var (
	ErrDuplicatePairingCode = domain.ErrConflict("pairing code already issued")
	ErrDuplicateJoinCode    = domain.ErrConflict("join code already issued")
	ErrDuplicateEmail       = domain.ErrConflict("email already registered for this exam session")

	ErrDuplicateProctorEmail = domain.ErrConflict("a proctor with this email already exists")
)

// Directory reads students and exam sessions. Finders return nil, nil when
// the row does not exist.
type Directory interface {
	FindStudent(ctx context.Context, id uuid.UUID) (*domain.Student, error)
	FindSession(ctx context.Context, id uuid.UUID) (*domain.ExamSession, error)
	FindSessionByJoinCode(ctx context.Context, code string) (*domain.ExamSession, error)
	FindProctor(ctx context.Context, id uuid.UUID) (*domain.Proctor, error)
	FindProctorByEmail(ctx context.Context, email string) (*domain.Proctor, error)

	// ListStudentsBySession returns students ordered by created_at ASC.
	ListStudentsBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Student, error)

	// ListSessionsByOwner returns a proctor's sessions ordered by start_time DESC.
	ListSessionsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.ExamSession, error)

	// ListActiveSessions returns active sessions ordered by end_time ASC.
	ListActiveSessions(ctx context.Context) ([]domain.ExamSession, error)

	// ListExpiredSessions returns sessions where active and end_time < now.
	ListExpiredSessions(ctx context.Context, now time.Time) ([]domain.ExamSession, error)
}

// IncidentLog reads the append-only incident ledger.
type IncidentLog interface {
	FindIncident(ctx context.Context, id uuid.UUID) (*domain.Incident, error)

	// ListIncidentsBySession returns incidents ordered by detected_at DESC.
	ListIncidentsBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Incident, error)

	// ListIncidentsByStudent returns incidents ordered by detected_at DESC.
	ListIncidentsByStudent(ctx context.Context, studentID uuid.UUID) ([]domain.Incident, error)

	// ListPendingIncidents returns PENDING_REVIEW incidents ordered by detected_at ASC.
	ListPendingIncidents(ctx context.Context, sessionID uuid.UUID) ([]domain.Incident, error)

	// CountIncidentsByType counts every incident in the session regardless of status.
	CountIncidentsByType(ctx context.Context, sessionID uuid.UUID) (map[domain.ViolationType]int, error)

	// TopOffenders ranks students by incidents not dismissed as FALSE_POSITIVE.
	TopOffenders(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.OffenderCount, error)
}

// OutboxStore feeds the outbox relay.
type OutboxStore interface {
	// FetchUnpublished returns pending events ordered by sequence.
	FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxRecord, error)

	// MarkPublished removes relayed events.
	MarkPublished(ctx context.Context, seqs []int64) error
}

// Tx is one atomic unit of work. Counter and status changes are applied
// with server-side arithmetic or conditional writes, never read-modify-write.
type Tx interface {
	// LockStudent returns the student and holds its row lock until commit.
	LockStudent(ctx context.Context, id uuid.UUID) (*domain.Student, error)
	LockStudentByPairingCode(ctx context.Context, code string) (*domain.Student, error)

	FindSession(ctx context.Context, id uuid.UUID) (*domain.ExamSession, error)
	LockSession(ctx context.Context, id uuid.UUID) (*domain.ExamSession, error)
	InsertSession(ctx context.Context, s *domain.ExamSession) error
	SetSessionPublished(ctx context.Context, id uuid.UUID) (*domain.ExamSession, error)

	// CloseSessionIfActive flips active to false only if it is still true.
	// Returns nil, nil when the session was already closed.
	CloseSessionIfActive(ctx context.Context, id uuid.UUID, at time.Time) (*domain.ExamSession, error)

	InsertStudent(ctx context.Context, s *domain.Student) error
	InsertProctor(ctx context.Context, p *domain.Proctor) error

	// ApplyPenalty adds p to the student's counters, flooring both at zero.
	ApplyPenalty(ctx context.Context, studentID uuid.UUID, p domain.Penalty) (*domain.Student, error)
	SetStudentStatus(ctx context.Context, id uuid.UUID, status domain.StudentStatus, at time.Time) (*domain.Student, error)
	BanStudent(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*domain.Student, error)

	// MarkMobileConnected sets the flag only if unset. Returns nil, nil when
	// the device was already connected.
	MarkMobileConnected(ctx context.Context, id uuid.UUID) (*domain.Student, error)
	TouchActivity(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Student, error)

	// InsertIncidentUnlessRecent inserts inc unless an incident of the same
	// student and type was detected inside the open interval (from, to).
	InsertIncidentUnlessRecent(ctx context.Context, inc *domain.Incident, from, to time.Time) (bool, error)
	LockIncident(ctx context.Context, id uuid.UUID) (*domain.Incident, error)
	SetIncidentStatus(ctx context.Context, id uuid.UUID, status domain.IncidentStatus, at time.Time) (*domain.Incident, error)

	// InsertOutbox writes an event in the same transaction as the change it describes.
	InsertOutbox(ctx context.Context, draft domain.OutboxDraft) error
}

// Store is the persistence boundary of the proctoring core.
type Store interface {
	Directory
	IncidentLog
	OutboxStore

	// WithTx runs fn in a transaction, committing only if fn returns nil.
	WithTx(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
}
