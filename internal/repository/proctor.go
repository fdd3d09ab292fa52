package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
)

const proctorColumns = `id, email, full_name, password_hash, role, created_at`

func (s *PostgresStore) FindProctor(ctx context.Context, id uuid.UUID) (*domain.Proctor, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+proctorColumns+` FROM proctors WHERE id = $1`, id)
	return scanProctor(row)
}

func (s *PostgresStore) FindProctorByEmail(ctx context.Context, email string) (*domain.Proctor, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+proctorColumns+` FROM proctors WHERE email = $1`, email)
	return scanProctor(row)
}

func (t *pgTx) InsertProctor(ctx context.Context, p *domain.Proctor) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO proctors (id, email, full_name, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Email, p.FullName, p.PasswordHash, p.Role, p.CreatedAt,
	)
	if err == nil {
		return nil
	}
	if c := uniqueConstraint(err); c == "proctors_email_key" {
		return ErrDuplicateProctorEmail
	} else if c != "" {
		return domain.ErrConflict("proctor already exists")
	}
	return fmt.Errorf("insert proctor: %w", err)
}

func scanProctor(row pgx.Row) (*domain.Proctor, error) {
	var p domain.Proctor
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.PasswordHash, &p.Role, &p.CreatedAt)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan proctor: %w", err)
	}
	return &p, nil
}
