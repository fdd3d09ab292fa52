package domain

import (
	"time"

	"github.com/google/uuid"
)

// StudentStatus is the exam-taking state of a student.
type StudentStatus string

const (
	StudentRegistered StudentStatus = "REGISTERED"
	StudentInProgress StudentStatus = "IN_PROGRESS"
	StudentSubmitted  StudentStatus = "SUBMITTED"
	StudentTerminated StudentStatus = "TERMINATED"
)

// Valid reports whether s is one of the known statuses.
func (s StudentStatus) Valid() bool {
	switch s {
	case StudentRegistered, StudentInProgress, StudentSubmitted, StudentTerminated:
		return true
	}
	return false
}

// Student is a participant in one exam session.
type Student struct {
	ID                 uuid.UUID     `json:"id"`
	SessionID          uuid.UUID     `json:"sessionId"`
	FullName           string        `json:"fullName"`
	Email              string        `json:"email"`
	StrikeCount        int           `json:"strikeCount"`
	SuspicionScore     Score         `json:"suspicionScore"`
	Status             StudentStatus `json:"status"`
	Banned             bool          `json:"banned"`
	BanReason          string        `json:"banReason,omitempty"`
	PairingCode        string        `json:"-"`
	MobileConnected    bool          `json:"mobileConnected"`
	IPAddress          string        `json:"ipAddress,omitempty"`
	BrowserFingerprint string        `json:"browserFingerprint,omitempty"`
	LastActivityAt     *time.Time    `json:"lastActivityAt,omitempty"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

// WithPenalty returns the counters after applying p, floored at zero.
func (s Student) WithPenalty(p Penalty) (Score, int) {
	score := s.SuspicionScore + p.Score
	if score < 0 {
		score = 0
	}
	strikes := s.StrikeCount + p.Strikes
	if strikes < 0 {
		strikes = 0
	}
	return score, strikes
}

// StudentStatusView is the reduced view returned to the exam client and
// proctor dashboard.
type StudentStatusView struct {
	StudentID       uuid.UUID     `json:"studentId"`
	SessionID       uuid.UUID     `json:"sessionId"`
	Status          StudentStatus `json:"status"`
	Banned          bool          `json:"banned"`
	BanEligible     bool          `json:"banEligible"`
	SuspicionScore  Score         `json:"suspicionScore"`
	StrikeCount     int           `json:"strikeCount"`
	RiskLevel       string        `json:"riskLevel"`
	RiskFlags       []string      `json:"riskFlags,omitempty"`
	MobileConnected bool          `json:"mobileConnected"`
}
