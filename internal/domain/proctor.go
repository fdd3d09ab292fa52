package domain

import (
	"time"

	"github.com/google/uuid"
)

// Proctor is a staff account that owns exam sessions and reviews incidents.
type Proctor struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}
