package guard

import (
	"time"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
)

// DefaultDedupHorizon is how close two same-type reports for one student
// may be, by detection time, before the later one is suppressed.
const DefaultDedupHorizon = 10 * time.Second

// DedupWindow decides whether a report repeats a recently accepted incident.
// The window is symmetric around the detection time so a late-arriving
// report of an earlier detection still collapses into the same burst.
type DedupWindow struct {
	horizon time.Duration
}

// NewDedupWindow creates a window; a non-positive horizon uses the default.
func NewDedupWindow(horizon time.Duration) DedupWindow {
	if horizon <= 0 {
		horizon = DefaultDedupHorizon
	}
	return DedupWindow{horizon: horizon}
}

// Horizon returns the configured window width.
func (w DedupWindow) Horizon() time.Duration {
	if w.horizon <= 0 {
		return DefaultDedupHorizon
	}
	return w.horizon
}

// Bounds returns the open interval (from, to) an accepted incident's
// detection time must fall in to suppress a report detected at at.
// Incidents exactly one horizon apart are not repeats.
func (w DedupWindow) Bounds(at time.Time) (from, to time.Time) {
	h := w.Horizon()
	return at.Add(-h), at.Add(h)
}

// Verdict converts the outcome of the conditional insert into a guard result.
func (w DedupWindow) Verdict(inserted bool) domain.GuardResult {
	if inserted {
		return domain.GuardResult{Allowed: true}
	}
	return domain.GuardResult{
		Allowed: false,
		Reason:  "same violation type reported within " + w.Horizon().String(),
		Guard:   "dedup_window",
	}
}
