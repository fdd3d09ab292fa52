package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/policy"
)

// TopOffenderLimit is the size of the dashboard's offender ranking.
const TopOffenderLimit = 5

// ScoreDistribution summarizes suspicion scores across a session, in points.
type ScoreDistribution struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	Max    float64 `json:"max"`
}

// Summary aggregates a session's incidents for the proctor dashboard.
type Summary struct {
	SessionID      uuid.UUID                    `json:"sessionId"`
	TotalIncidents int                          `json:"totalIncidents"`
	PendingReview  int                          `json:"pendingReview"`
	ByType         map[domain.ViolationType]int `json:"byType"`
	TopOffenders   []domain.OffenderCount       `json:"topOffenders"`
	BanEligible    []uuid.UUID                  `json:"banEligible"`
	Students       int                          `json:"students"`
	Scores         *ScoreDistribution           `json:"scores,omitempty"`
}

// Summarize counts incidents by type across every status and ranks students
// by incidents that were not dismissed.
func (e *Engine) Summarize(ctx context.Context, sessionID uuid.UUID) (*Summary, error) {
	es, err := e.findSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	byType, err := e.store.CountIncidentsByType(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count incidents by type: %w", err)
	}
	top, err := e.store.TopOffenders(ctx, sessionID, TopOffenderLimit)
	if err != nil {
		return nil, fmt.Errorf("rank offenders: %w", err)
	}
	pending, err := e.store.ListPendingIncidents(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list pending incidents: %w", err)
	}
	students, err := e.store.ListStudentsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}

	sum := &Summary{
		SessionID:     sessionID,
		PendingReview: len(pending),
		ByType:        byType,
		TopOffenders:  top,
		BanEligible:   []uuid.UUID{},
		Students:      len(students),
	}
	if sum.TopOffenders == nil {
		sum.TopOffenders = []domain.OffenderCount{}
	}
	for _, n := range byType {
		sum.TotalIncidents += n
	}

	scores := make([]float64, 0, len(students))
	for _, st := range students {
		scores = append(scores, st.SuspicionScore.Points())
		if policy.BanEligible(st.StrikeCount, es.MaxWarnings) {
			sum.BanEligible = append(sum.BanEligible, st.ID)
		}
	}
	if len(scores) > 0 {
		dist, err := distribution(scores)
		if err != nil {
			return nil, fmt.Errorf("score distribution: %w", err)
		}
		sum.Scores = dist
	}
	return sum, nil
}

func distribution(data []float64) (*ScoreDistribution, error) {
	mean, err := stats.Mean(data)
	if err != nil {
		return nil, err
	}
	median, err := stats.Median(data)
	if err != nil {
		return nil, err
	}
	p90, err := stats.Percentile(data, 90)
	if err != nil {
		return nil, err
	}
	max, err := stats.Max(data)
	if err != nil {
		return nil, err
	}
	return &ScoreDistribution{Mean: mean, Median: median, P90: p90, Max: max}, nil
}
