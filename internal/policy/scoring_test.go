package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
)

func TestSeverityOf(t *testing.T) {
	tests := []struct {
		vt        domain.ViolationType
		want      Severity
		wantKnown bool
	}{
		{domain.ViolationMobilePhone, SeverityMajor, true},
		{domain.ViolationMultipleFaces, SeverityMajor, true},
		{domain.ViolationSuspiciousAudio, SeverityMedium, true},
		{domain.ViolationCopyPaste, SeverityMedium, true},
		{domain.ViolationTabSwitch, SeverityMinor, true},
		{domain.ViolationLookingAway, SeverityMinor, true},
		{domain.ViolationNoFace, SeverityMinor, true},
		{"SMARTWATCH_DETECTED", SeverityMinor, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.vt), func(t *testing.T) {
			sev, known := SeverityOf(tt.vt)
			assert.Equal(t, tt.want, sev)
			assert.Equal(t, tt.wantKnown, known)
		})
	}
}

func TestEveryKnownTypeHasBucket(t *testing.T) {
	for _, vt := range domain.KnownViolationTypes {
		_, known := SeverityOf(vt)
		assert.True(t, known, "no bucket for %s", vt)
	}
}

func TestScoreDelta(t *testing.T) {
	tests := []struct {
		name       string
		vt         domain.ViolationType
		confidence float64
		want       float64
	}{
		{"phone high confidence", domain.ViolationMobilePhone, 0.9, 18},
		{"copy paste full confidence", domain.ViolationCopyPaste, 1.0, 10},
		{"tab switch full confidence", domain.ViolationTabSwitch, 1.0, 5},
		{"looking away", domain.ViolationLookingAway, 0.8, 4},
		{"low confidence floored", domain.ViolationLookingAway, 0.1, 2.5},
		{"zero confidence floored", domain.ViolationMultipleFaces, 0, 10},
		{"unknown type scores minor", "SMARTWATCH_DETECTED", 1.0, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ScoreDelta(tt.vt, tt.confidence), 1e-9)
		})
	}
}

func TestScoreDelta_Bounds(t *testing.T) {
	for _, vt := range domain.KnownViolationTypes {
		for _, c := range []float64{0, 0.25, 0.5, 0.75, 1} {
			d := ScoreDelta(vt, c)
			assert.GreaterOrEqual(t, d, MinorBase*ConfidenceFloor)
			assert.LessOrEqual(t, d, MajorBase)
		}
	}
}

func TestPenaltyFor(t *testing.T) {
	p := PenaltyFor(domain.ViolationMobilePhone, 0.9)
	assert.Equal(t, domain.Score(180000), p.Score)
	assert.Equal(t, 1, p.Strikes)
}

func TestBanEligible(t *testing.T) {
	tests := []struct {
		name        string
		strikes     int
		maxWarnings int
		want        bool
	}{
		{"below limit", 2, 3, false},
		{"at limit", 3, 3, false},
		{"above limit", 4, 3, true},
		{"limit disabled", 10, 0, false},
		{"negative limit disabled", 10, -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BanEligible(tt.strikes, tt.maxWarnings))
		})
	}
}

func TestEvaluateStudentRisk_LowRisk(t *testing.T) {
	result := EvaluateStudentRisk(StudentRiskSignals{SuspicionScore: domain.ScoreFromPoints(5), StrikeCount: 1, MaxWarnings: 3})
	assert.Equal(t, RiskLow, result.Level)
	assert.False(t, result.BanEligible)
	assert.Empty(t, result.Flags)
}

func TestEvaluateStudentRisk_MediumRisk(t *testing.T) {
	result := EvaluateStudentRisk(StudentRiskSignals{SuspicionScore: domain.ScoreFromPoints(28), StrikeCount: 3, MaxWarnings: 3})
	assert.Equal(t, RiskMedium, result.Level)
	assert.Contains(t, result.Flags, "elevated_suspicion")
	assert.Contains(t, result.Flags, "final_warning")
}

func TestEvaluateStudentRisk_HighRiskFromStrikes(t *testing.T) {
	result := EvaluateStudentRisk(StudentRiskSignals{SuspicionScore: domain.ScoreFromPoints(10), StrikeCount: 4, MaxWarnings: 3})
	assert.Equal(t, RiskHigh, result.Level)
	assert.True(t, result.BanEligible)
	assert.Contains(t, result.Flags, "strikes_exceeded")
}

func TestEvaluateStudentRisk_HighRiskFromScore(t *testing.T) {
	result := EvaluateStudentRisk(StudentRiskSignals{SuspicionScore: domain.ScoreFromPoints(60)})
	assert.Equal(t, RiskHigh, result.Level)
	assert.Contains(t, result.Flags, "high_suspicion")
}

func TestEvaluateStudentRisk_MobileMissing(t *testing.T) {
	result := EvaluateStudentRisk(StudentRiskSignals{MobileRequired: true})
	assert.Contains(t, result.Flags, "mobile_sentinel_missing")
}

func TestPenaltyFor_RoundsToFourDecimals(t *testing.T) {
	p := PenaltyFor(domain.ViolationTabSwitch, 0.77777)
	assert.Equal(t, domain.Score(38889), p.Score)
	assert.Equal(t, 3.8889, p.Score.Points())

	// Whatever was applied is exactly what comes back off.
	var total domain.Score
	for i := 0; i < 7; i++ {
		total += p.Score
	}
	for i := 0; i < 7; i++ {
		total += p.Inverse().Score
	}
	assert.Zero(t, total)
}
