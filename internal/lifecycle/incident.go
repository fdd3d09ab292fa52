package lifecycle

import (
	"fmt"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
)

// Effect is the counter side effect of an incident review transition.
type Effect string

const (
	EffectNone    Effect = "none"
	EffectRevert  Effect = "revert"
	EffectReapply Effect = "reapply"
)

type incidentEdge struct {
	from, to domain.IncidentStatus
}

// incidentEffects is the complete set of legal review transitions.
// A dismissed incident may be reinstated once; a verified one is final.
var incidentEffects = map[incidentEdge]Effect{
	{domain.IncidentPendingReview, domain.IncidentVerified}:      EffectNone,
	{domain.IncidentPendingReview, domain.IncidentFalsePositive}: EffectRevert,
	{domain.IncidentFalsePositive, domain.IncidentVerified}:      EffectReapply,
}

// IncidentTransition validates a review decision and returns its effect.
// changed is false when the target equals the current status.
func IncidentTransition(from, to domain.IncidentStatus) (effect Effect, changed bool, err error) {
	if _, err := domain.ParseIncidentStatus(string(to)); err != nil {
		return EffectNone, false, err
	}
	if from == to {
		return EffectNone, false, nil
	}
	effect, ok := incidentEffects[incidentEdge{from, to}]
	if !ok {
		return EffectNone, false, domain.ErrPreconditionFailed(fmt.Sprintf("incident cannot move from %s to %s", from, to))
	}
	return effect, true, nil
}

// PenaltyForEffect returns the counter change for an effect, where base is
// the penalty the incident applied when it was accepted.
func PenaltyForEffect(effect Effect, base domain.Penalty) domain.Penalty {
	switch effect {
	case EffectRevert:
		return base.Inverse()
	case EffectReapply:
		return base
	default:
		return domain.Penalty{}
	}
}
