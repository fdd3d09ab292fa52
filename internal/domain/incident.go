package domain

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// ViolationType names what a detector observed.
type ViolationType string

const (
	ViolationNoFace          ViolationType = "NO_FACE_DETECTED"
	ViolationMultipleFaces   ViolationType = "MULTIPLE_FACES_DETECTED"
	ViolationLookingAway     ViolationType = "LOOKING_AWAY"
	ViolationMobilePhone     ViolationType = "MOBILE_PHONE_DETECTED"
	ViolationTabSwitch       ViolationType = "TAB_SWITCH"
	ViolationCopyPaste       ViolationType = "COPY_PASTE_DETECTED"
	ViolationSuspiciousAudio ViolationType = "SUSPICIOUS_AUDIO"
	ViolationUnauthorizedObj ViolationType = "UNAUTHORIZED_OBJECT"
)

// KnownViolationTypes lists every violation type the scorer has a bucket for.
var KnownViolationTypes = []ViolationType{
	ViolationNoFace,
	ViolationMultipleFaces,
	ViolationLookingAway,
	ViolationMobilePhone,
	ViolationTabSwitch,
	ViolationCopyPaste,
	ViolationSuspiciousAudio,
	ViolationUnauthorizedObj,
}

var violationTypeRegex = regexp.MustCompile(`^[A-Z][A-Z0-9_]{1,63}$`)

// Known reports whether t is one of KnownViolationTypes.
func (t ViolationType) Known() bool {
	for _, k := range KnownViolationTypes {
		if t == k {
			return true
		}
	}
	return false
}

// ParseViolationType accepts any well-formed type name. Names outside
// KnownViolationTypes are allowed and scored in the minor bucket.
func ParseViolationType(s string) (ViolationType, error) {
	if !violationTypeRegex.MatchString(s) {
		return "", ErrInvalidArgument("malformed violation type: " + s)
	}
	return ViolationType(s), nil
}

// IncidentStatus is the review state of an incident.
type IncidentStatus string

const (
	IncidentPendingReview IncidentStatus = "PENDING_REVIEW"
	IncidentVerified      IncidentStatus = "VERIFIED"
	IncidentFalsePositive IncidentStatus = "FALSE_POSITIVE"
)

// ParseIncidentStatus rejects unknown statuses with InvalidArgument.
func ParseIncidentStatus(s string) (IncidentStatus, error) {
	switch st := IncidentStatus(s); st {
	case IncidentPendingReview, IncidentVerified, IncidentFalsePositive:
		return st, nil
	}
	return "", ErrInvalidArgument("unknown incident status: " + s)
}

// Incident is one accepted violation report.
type Incident struct {
	ID          uuid.UUID      `json:"id"`
	StudentID   uuid.UUID      `json:"studentId"`
	SessionID   uuid.UUID      `json:"sessionId"`
	Type        ViolationType  `json:"type"`
	Description string         `json:"description,omitempty"`
	Confidence  float64        `json:"confidence"`
	EvidenceRef string         `json:"evidenceRef,omitempty"`
	Status      IncidentStatus `json:"status"`
	DetectedAt  time.Time      `json:"detectedAt"`
	// ObservedAt is the reporter's own clock reading, kept for review only.
	ObservedAt *time.Time `json:"observedAt,omitempty"`
	ReviewedAt *time.Time `json:"reviewedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// OffenderCount ranks a student by non-dismissed incidents.
type OffenderCount struct {
	StudentID uuid.UUID `json:"studentId"`
	FullName  string    `json:"fullName"`
	Incidents int       `json:"incidents"`
}
