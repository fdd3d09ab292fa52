package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
)

const sessionColumns = `id, owner_id, title, subject_code, join_code, instructions, start_time, end_time,
	active, published, max_warnings, sensitivity, mobile_sentinel_required, closed_at, created_at, updated_at`

func (s *PostgresStore) FindSession(ctx context.Context, id uuid.UUID) (*domain.ExamSession, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (s *PostgresStore) FindSessionByJoinCode(ctx context.Context, code string) (*domain.ExamSession, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM exam_sessions WHERE join_code = $1`, code)
	return scanSession(row)
}

func (s *PostgresStore) ListSessionsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.ExamSession, error) {
	return listSessions(ctx, s.pool, `
		SELECT `+sessionColumns+` FROM exam_sessions
		WHERE owner_id = $1 ORDER BY start_time DESC, id ASC`, ownerID)
}

func (s *PostgresStore) ListActiveSessions(ctx context.Context) ([]domain.ExamSession, error) {
	return listSessions(ctx, s.pool, `
		SELECT `+sessionColumns+` FROM exam_sessions
		WHERE active ORDER BY end_time ASC, id ASC`)
}

func (s *PostgresStore) ListExpiredSessions(ctx context.Context, now time.Time) ([]domain.ExamSession, error) {
	return listSessions(ctx, s.pool, `
		SELECT `+sessionColumns+` FROM exam_sessions
		WHERE active AND end_time < $1 ORDER BY end_time ASC, id ASC`, now)
}

func (t *pgTx) FindSession(ctx context.Context, id uuid.UUID) (*domain.ExamSession, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (t *pgTx) LockSession(ctx context.Context, id uuid.UUID) (*domain.ExamSession, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1 FOR UPDATE`, id)
	return scanSession(row)
}

func (t *pgTx) InsertSession(ctx context.Context, s *domain.ExamSession) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO exam_sessions
		  (id, owner_id, title, subject_code, join_code, instructions, start_time, end_time,
		   active, published, max_warnings, sensitivity, mobile_sentinel_required, closed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		s.ID, s.OwnerID, s.Title, s.SubjectCode, s.JoinCode, s.Instructions, s.StartTime, s.EndTime,
		s.Active, s.Published, s.MaxWarnings, string(s.Sensitivity), s.MobileSentinelRequired,
		s.ClosedAt, s.CreatedAt, s.UpdatedAt,
	)
	if err == nil {
		return nil
	}
	if c := uniqueConstraint(err); c == "exam_sessions_join_code_key" {
		return ErrDuplicateJoinCode
	} else if c != "" {
		return domain.ErrConflict("exam session already exists")
	}
	return fmt.Errorf("insert exam session: %w", err)
}

func (t *pgTx) SetSessionPublished(ctx context.Context, id uuid.UUID) (*domain.ExamSession, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE exam_sessions SET published = true, updated_at = now()
		WHERE id = $1
		RETURNING `+sessionColumns, id)
	return scanSession(row)
}

// CloseSessionIfActive is the conditional write the sweeper relies on:
// a second close of the same session matches no row.
func (t *pgTx) CloseSessionIfActive(ctx context.Context, id uuid.UUID, at time.Time) (*domain.ExamSession, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE exam_sessions SET active = false, closed_at = $2, updated_at = now()
		WHERE id = $1 AND active
		RETURNING `+sessionColumns, id, at)
	return scanSession(row)
}

func listSessions(ctx context.Context, db DBTX, query string, args ...interface{}) ([]domain.ExamSession, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exam sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*domain.ExamSession, error) {
	var s domain.ExamSession
	var sensitivity string
	err := row.Scan(&s.ID, &s.OwnerID, &s.Title, &s.SubjectCode, &s.JoinCode, &s.Instructions,
		&s.StartTime, &s.EndTime, &s.Active, &s.Published, &s.MaxWarnings, &sensitivity,
		&s.MobileSentinelRequired, &s.ClosedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan exam session: %w", err)
	}
	s.Sensitivity = domain.Sensitivity(sensitivity)
	return &s, nil
}
