package policy

import (
	"math"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
)

// Severity buckets violation types by how much they weigh.
type Severity string

const (
	SeverityMajor  Severity = "major"
	SeverityMedium Severity = "medium"
	SeverityMinor  Severity = "minor"
)

// Base points per severity bucket.
const (
	MajorBase  = 20.0
	MediumBase = 10.0
	MinorBase  = 5.0
)

// ConfidenceFloor is the lowest multiplier applied to a base score,
// so weak detections still count for something.
const ConfidenceFloor = 0.5

var severityByType = map[domain.ViolationType]Severity{
	domain.ViolationMobilePhone:     SeverityMajor,
	domain.ViolationMultipleFaces:   SeverityMajor,
	domain.ViolationSuspiciousAudio: SeverityMedium,
	domain.ViolationCopyPaste:       SeverityMedium,
	domain.ViolationNoFace:          SeverityMinor,
	domain.ViolationLookingAway:     SeverityMinor,
	domain.ViolationTabSwitch:       SeverityMinor,
	domain.ViolationUnauthorizedObj: SeverityMinor,
}

// SeverityOf returns the bucket for t. Types without an explicit bucket
// fall into minor and known is false so callers can surface them.
func SeverityOf(t domain.ViolationType) (sev Severity, known bool) {
	sev, known = severityByType[t]
	if !known {
		return SeverityMinor, false
	}
	return sev, true
}

// BaseScore returns the base points for a bucket.
func BaseScore(sev Severity) float64 {
	switch sev {
	case SeverityMajor:
		return MajorBase
	case SeverityMedium:
		return MediumBase
	default:
		return MinorBase
	}
}

// ScoreDelta computes base(type) * max(confidence, 0.5) in points.
func ScoreDelta(t domain.ViolationType, confidence float64) float64 {
	sev, _ := SeverityOf(t)
	return BaseScore(sev) * math.Max(confidence, ConfidenceFloor)
}

// PenaltyFor returns the counter change an accepted incident applies.
// Every accepted incident costs exactly one strike.
func PenaltyFor(t domain.ViolationType, confidence float64) domain.Penalty {
	return domain.Penalty{
		Score:   domain.ScoreFromPoints(ScoreDelta(t, confidence)),
		Strikes: 1,
	}
}

// BanEligible reports whether strikes exceed the session's warning limit.
// A limit of zero or less disables the check.
func BanEligible(strikes, maxWarnings int) bool {
	return maxWarnings > 0 && strikes > maxWarnings
}
