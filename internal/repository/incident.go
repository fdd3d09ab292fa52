package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
)

const incidentColumns = `id, student_id, session_id, violation_type, description, confidence,
	evidence_ref, status, detected_at, observed_at, reviewed_at, created_at`

func (s *PostgresStore) FindIncident(ctx context.Context, id uuid.UUID) (*domain.Incident, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id)
	return scanIncident(row)
}

func (s *PostgresStore) ListIncidentsBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Incident, error) {
	return listIncidents(ctx, s.pool, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE session_id = $1 ORDER BY detected_at DESC, created_at DESC`, sessionID)
}

func (s *PostgresStore) ListIncidentsByStudent(ctx context.Context, studentID uuid.UUID) ([]domain.Incident, error) {
	return listIncidents(ctx, s.pool, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE student_id = $1 ORDER BY detected_at DESC, created_at DESC`, studentID)
}

func (s *PostgresStore) ListPendingIncidents(ctx context.Context, sessionID uuid.UUID) ([]domain.Incident, error) {
	return listIncidents(ctx, s.pool, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE session_id = $1 AND status = $2 ORDER BY detected_at ASC, created_at ASC`,
		sessionID, string(domain.IncidentPendingReview))
}

func (s *PostgresStore) CountIncidentsByType(ctx context.Context, sessionID uuid.UUID) (map[domain.ViolationType]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT violation_type, COUNT(*) FROM incidents
		WHERE session_id = $1 GROUP BY violation_type`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count incidents by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ViolationType]int)
	for rows.Next() {
		var vt string
		var n int
		if err := rows.Scan(&vt, &n); err != nil {
			return nil, fmt.Errorf("scan type count: %w", err)
		}
		counts[domain.ViolationType(vt)] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) TopOffenders(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.OffenderCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT st.id, st.full_name, COUNT(*) AS n
		FROM incidents i JOIN students st ON st.id = i.student_id
		WHERE i.session_id = $1 AND i.status <> $2
		GROUP BY st.id, st.full_name
		ORDER BY n DESC, st.full_name ASC, st.id ASC
		LIMIT $3`, sessionID, string(domain.IncidentFalsePositive), limit)
	if err != nil {
		return nil, fmt.Errorf("top offenders: %w", err)
	}
	defer rows.Close()

	var out []domain.OffenderCount
	for rows.Next() {
		var oc domain.OffenderCount
		if err := rows.Scan(&oc.StudentID, &oc.FullName, &oc.Incidents); err != nil {
			return nil, fmt.Errorf("scan offender: %w", err)
		}
		out = append(out, oc)
	}
	return out, rows.Err()
}

// InsertIncidentUnlessRecent is a single conditional insert; combined with the
// student row lock held by the caller it serializes dedup per student.
func (t *pgTx) InsertIncidentUnlessRecent(ctx context.Context, inc *domain.Incident, from, to time.Time) (bool, error) {
	var id uuid.UUID
	err := t.tx.QueryRow(ctx, `
		INSERT INTO incidents
		  (id, student_id, session_id, violation_type, description, confidence,
		   evidence_ref, status, detected_at, observed_at, created_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		WHERE NOT EXISTS (
		  SELECT 1 FROM incidents
		  WHERE student_id = $2 AND violation_type = $4
		    AND detected_at > $12 AND detected_at < $13)
		RETURNING id`,
		inc.ID, inc.StudentID, inc.SessionID, string(inc.Type), inc.Description, inc.Confidence,
		inc.EvidenceRef, string(inc.Status), inc.DetectedAt, inc.ObservedAt, inc.CreatedAt, from, to,
	).Scan(&id)
	if err != nil {
		if noRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert incident: %w", err)
	}
	return true, nil
}

func (t *pgTx) LockIncident(ctx context.Context, id uuid.UUID) (*domain.Incident, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1 FOR UPDATE`, id)
	return scanIncident(row)
}

func (t *pgTx) SetIncidentStatus(ctx context.Context, id uuid.UUID, status domain.IncidentStatus, at time.Time) (*domain.Incident, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE incidents SET status = $2, reviewed_at = $3
		WHERE id = $1
		RETURNING `+incidentColumns, id, string(status), at)
	return scanIncident(row)
}

func listIncidents(ctx context.Context, db DBTX, query string, args ...interface{}) ([]domain.Incident, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var out []domain.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inc)
	}
	return out, rows.Err()
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var inc domain.Incident
	var vt, status string
	err := row.Scan(&inc.ID, &inc.StudentID, &inc.SessionID, &vt, &inc.Description, &inc.Confidence,
		&inc.EvidenceRef, &status, &inc.DetectedAt, &inc.ObservedAt, &inc.ReviewedAt, &inc.CreatedAt)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan incident: %w", err)
	}
	inc.Type = domain.ViolationType(vt)
	inc.Status = domain.IncidentStatus(status)
	return &inc, nil
}
