package policy

import "github.com/Divyesh172/SmartProctor-FullStack/internal/domain"

// RiskLevel classifies a student's standing for the live dashboard.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Score thresholds in points.
const (
	mediumRiskPoints = 20.0
	highRiskPoints   = 50.0
)

// StudentRiskSignals holds the raw inputs for risk evaluation.
type StudentRiskSignals struct {
	SuspicionScore  domain.Score
	StrikeCount     int
	MaxWarnings     int
	MobileRequired  bool
	MobileConnected bool
}

// StudentRiskResult holds the evaluated risk.
type StudentRiskResult struct {
	Level       RiskLevel `json:"level"`
	BanEligible bool      `json:"banEligible"`
	Flags       []string  `json:"flags,omitempty"`
}

// EvaluateStudentRisk classifies a student from their counters.
func EvaluateStudentRisk(signals StudentRiskSignals) StudentRiskResult {
	var flags []string
	points := signals.SuspicionScore.Points()

	level := RiskLow
	if points >= highRiskPoints {
		level = RiskHigh
		flags = append(flags, "high_suspicion")
	} else if points >= mediumRiskPoints {
		level = RiskMedium
		flags = append(flags, "elevated_suspicion")
	}

	eligible := BanEligible(signals.StrikeCount, signals.MaxWarnings)
	if eligible {
		level = RiskHigh
		flags = append(flags, "strikes_exceeded")
	} else if signals.MaxWarnings > 0 && signals.StrikeCount == signals.MaxWarnings {
		flags = append(flags, "final_warning")
	}

	if signals.MobileRequired && !signals.MobileConnected {
		flags = append(flags, "mobile_sentinel_missing")
	}

	return StudentRiskResult{Level: level, BanEligible: eligible, Flags: flags}
}
