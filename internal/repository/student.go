package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
)

const studentColumns = `id, session_id, full_name, email, strike_count, suspicion_score, status,
	banned, ban_reason, pairing_code, mobile_connected, ip_address, browser_fingerprint,
	last_activity_at, created_at, updated_at`

func (s *PostgresStore) FindStudent(ctx context.Context, id uuid.UUID) (*domain.Student, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
	return scanStudent(row)
}

func (s *PostgresStore) ListStudentsBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Student, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+studentColumns+`
		FROM students WHERE session_id = $1
		ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var out []domain.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func (t *pgTx) LockStudent(ctx context.Context, id uuid.UUID) (*domain.Student, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1 FOR UPDATE`, id)
	return scanStudent(row)
}

func (t *pgTx) LockStudentByPairingCode(ctx context.Context, code string) (*domain.Student, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE pairing_code = $1 FOR UPDATE`, code)
	return scanStudent(row)
}

func (t *pgTx) InsertStudent(ctx context.Context, st *domain.Student) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO students
		  (id, session_id, full_name, email, strike_count, suspicion_score, status,
		   banned, ban_reason, pairing_code, mobile_connected, ip_address, browser_fingerprint,
		   last_activity_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		st.ID, st.SessionID, st.FullName, st.Email, st.StrikeCount,
		ScoreToNumeric(st.SuspicionScore), string(st.Status),
		st.Banned, st.BanReason, st.PairingCode, st.MobileConnected,
		st.IPAddress, st.BrowserFingerprint, st.LastActivityAt, st.CreatedAt, st.UpdatedAt,
	)
	if err == nil {
		return nil
	}
	switch uniqueConstraint(err) {
	case "":
		return fmt.Errorf("insert student: %w", err)
	case "students_pairing_code_key":
		return ErrDuplicatePairingCode
	case "students_session_email_key":
		return ErrDuplicateEmail
	default:
		return domain.ErrConflict("student already exists")
	}
}

// ApplyPenalty uses server-side arithmetic so concurrent reporters never lose updates.
func (t *pgTx) ApplyPenalty(ctx context.Context, studentID uuid.UUID, p domain.Penalty) (*domain.Student, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE students SET
		  suspicion_score = GREATEST(suspicion_score + $2, 0),
		  strike_count    = GREATEST(strike_count + $3, 0),
		  updated_at      = now()
		WHERE id = $1
		RETURNING `+studentColumns, studentID, ScoreToNumeric(p.Score), p.Strikes)
	return scanStudent(row)
}

func (t *pgTx) SetStudentStatus(ctx context.Context, id uuid.UUID, status domain.StudentStatus, at time.Time) (*domain.Student, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE students SET status = $2, last_activity_at = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+studentColumns, id, string(status), at)
	return scanStudent(row)
}

func (t *pgTx) BanStudent(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*domain.Student, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE students SET status = $2, banned = true, ban_reason = $3, last_activity_at = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+studentColumns, id, string(domain.StudentTerminated), reason, at)
	return scanStudent(row)
}

func (t *pgTx) MarkMobileConnected(ctx context.Context, id uuid.UUID) (*domain.Student, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE students SET mobile_connected = true, updated_at = now()
		WHERE id = $1 AND NOT mobile_connected
		RETURNING `+studentColumns, id)
	return scanStudent(row)
}

// TouchActivity never moves last_activity_at backwards.
func (t *pgTx) TouchActivity(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Student, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE students SET last_activity_at = GREATEST(COALESCE(last_activity_at, $2), $2)
		WHERE id = $1
		RETURNING `+studentColumns, id, at)
	return scanStudent(row)
}

func scanStudent(row pgx.Row) (*domain.Student, error) {
	var st domain.Student
	var score pgtype.Numeric
	var status string
	err := row.Scan(&st.ID, &st.SessionID, &st.FullName, &st.Email, &st.StrikeCount, &score, &status,
		&st.Banned, &st.BanReason, &st.PairingCode, &st.MobileConnected, &st.IPAddress, &st.BrowserFingerprint,
		&st.LastActivityAt, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan student: %w", err)
	}
	st.Status = domain.StudentStatus(status)
	st.SuspicionScore, err = NumericToScore(score)
	if err != nil {
		return nil, fmt.Errorf("convert suspicion_score: %w", err)
	}
	return &st, nil
}
