package domain

import (
	"time"

	"github.com/google/uuid"
)

// Sensitivity is the detector sensitivity configured for a session.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "LOW"
	SensitivityMedium Sensitivity = "MEDIUM"
	SensitivityHigh   Sensitivity = "HIGH"
)

// Valid reports whether s is a known sensitivity.
func (s Sensitivity) Valid() bool {
	switch s {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
		return true
	}
	return false
}

// DefaultMaxWarnings is applied when a session is created without a limit.
const DefaultMaxWarnings = 3

// ExamSession is one scheduled exam.
type ExamSession struct {
	ID                     uuid.UUID   `json:"id"`
	OwnerID                uuid.UUID   `json:"ownerId"`
	Title                  string      `json:"title"`
	SubjectCode            string      `json:"subjectCode,omitempty"`
	JoinCode               string      `json:"joinCode"`
	Instructions           string      `json:"instructions,omitempty"`
	StartTime              time.Time   `json:"startTime"`
	EndTime                time.Time   `json:"endTime"`
	Active                 bool        `json:"active"`
	Published              bool        `json:"published"`
	MaxWarnings            int         `json:"maxWarnings"`
	Sensitivity            Sensitivity `json:"sensitivity"`
	MobileSentinelRequired bool        `json:"mobileSentinelRequired"`
	ClosedAt               *time.Time  `json:"closedAt,omitempty"`
	CreatedAt              time.Time   `json:"createdAt"`
	UpdatedAt              time.Time   `json:"updatedAt"`
}
