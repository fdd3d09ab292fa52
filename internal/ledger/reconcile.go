package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/policy"
)

// InvariantCheck records a single invariant validation.
type InvariantCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// ReconcileResult is the outcome of auditing one student against the ledger.
type ReconcileResult struct {
	StudentID       uuid.UUID        `json:"studentId"`
	Incidents       int              `json:"incidents"`
	ExpectedScore   domain.Score     `json:"expectedScore"`
	ExpectedStrikes int              `json:"expectedStrikes"`
	Invariants      []InvariantCheck `json:"invariants"`
	AllPassed       bool             `json:"allPassed"`
}

// Reconcile recomputes a student's counters from the incident ledger and
// validates them against the stored row.
//
// Invariants:
//  1. Counters non-negative
//  2. Score parity: score equals the sum of penalties of non-dismissed incidents
//  3. Strike parity: strikes equal the number of non-dismissed incidents
//  4. Session match: every incident belongs to the student's session
func (e *Engine) Reconcile(ctx context.Context, studentID uuid.UUID) (*ReconcileResult, error) {
	st, err := e.findStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	incs, err := e.store.ListIncidentsByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list student incidents: %w", err)
	}

	var want domain.Penalty
	foreign := 0
	for _, inc := range incs {
		if inc.SessionID != st.SessionID {
			foreign++
		}
		if inc.Status == domain.IncidentFalsePositive {
			continue
		}
		p := policy.PenaltyFor(inc.Type, inc.Confidence)
		want.Score += p.Score
		want.Strikes += p.Strikes
	}

	checks := []InvariantCheck{
		{
			Name:   "counters_non_negative",
			Passed: st.SuspicionScore >= 0 && st.StrikeCount >= 0,
			Detail: fmt.Sprintf("score=%s strikes=%d", st.SuspicionScore, st.StrikeCount),
		},
		{
			Name:   "score_parity",
			Passed: st.SuspicionScore == want.Score,
			Detail: fmt.Sprintf("stored=%s ledger=%s", st.SuspicionScore, want.Score),
		},
		{
			Name:   "strike_parity",
			Passed: st.StrikeCount == want.Strikes,
			Detail: fmt.Sprintf("stored=%d ledger=%d", st.StrikeCount, want.Strikes),
		},
		{
			Name:   "session_match",
			Passed: foreign == 0,
			Detail: fmt.Sprintf("%d incidents outside session %s", foreign, st.SessionID),
		},
	}

	res := &ReconcileResult{
		StudentID:       st.ID,
		Incidents:       len(incs),
		ExpectedScore:   want.Score,
		ExpectedStrikes: want.Strikes,
		Invariants:      checks,
		AllPassed:       true,
	}
	for _, c := range checks {
		if !c.Passed {
			res.AllPassed = false
		}
	}
	return res, nil
}
