// Package referee turns a detector's per-frame verdicts into incident
// reports. A violation is reported only after a run of bad frames, so a
// single noisy frame never reaches the ledger.
package referee

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/ledger"
)

// DefaultThreshold is roughly one second of video at 30 fps.
const DefaultThreshold = 30

// StatusSafe marks a clean frame.
const StatusSafe = "SAFE"

// Frame is one detector verdict.
type Frame struct {
	StudentID  uuid.UUID `json:"studentId"`
	Status     string    `json:"status"`
	Confidence float64   `json:"confidence,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// detectorAliases maps the detector's short statuses to violation types.
var detectorAliases = map[string]domain.ViolationType{
	"PHONE_DETECTED": domain.ViolationMobilePhone,
	"NO_FACE":        domain.ViolationNoFace,
	"MULTIPLE_FACES": domain.ViolationMultipleFaces,
	"OBJECT":         domain.ViolationUnauthorizedObj,
}

// ViolationFor maps a frame status to a violation type. ok is false for
// SAFE and for statuses that are not well-formed violation types.
func ViolationFor(status string) (domain.ViolationType, bool) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if status == "" || status == StatusSafe {
		return "", false
	}
	if vt, ok := detectorAliases[status]; ok {
		return vt, true
	}
	vt, err := domain.ParseViolationType(status)
	if err != nil {
		return "", false
	}
	return vt, true
}

// Filter counts consecutive bad frames per student. The counter climbs on
// bad frames and decays by one on safe frames; a report fires when it
// reaches the threshold exactly, so the counter must decay below it before
// the student can be reported again.
type Filter struct {
	mu        sync.Mutex
	threshold int
	counts    map[uuid.UUID]int
}

// NewFilter creates a filter; a threshold below one uses DefaultThreshold.
func NewFilter(threshold int) *Filter {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	return &Filter{threshold: threshold, counts: make(map[uuid.UUID]int)}
}

// Observe feeds one frame and returns the violation to report, if any.
func (f *Filter) Observe(fr Frame) (domain.ViolationType, bool) {
	vt, bad := ViolationFor(fr.Status)

	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.counts[fr.StudentID]
	if !bad {
		if n > 0 {
			n--
		}
		f.setCount(fr.StudentID, n)
		return "", false
	}
	n++
	f.setCount(fr.StudentID, n)
	return vt, n == f.threshold
}

func (f *Filter) setCount(id uuid.UUID, n int) {
	if n == 0 {
		delete(f.counts, id)
		return
	}
	f.counts[id] = n
}

// Count returns the current bad-frame counter for a student.
func (f *Filter) Count(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[id]
}

// Forget drops a student's counter, e.g. when their stream disconnects.
func (f *Filter) Forget(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counts, id)
}

// Recorder is the slice of the engine the referee reports to.
type Recorder interface {
	Record(ctx context.Context, p ledger.ReportParams) (*ledger.RecordResult, error)
}

// Referee filters frames and records confirmed violations.
type Referee struct {
	filter   *Filter
	recorder Recorder
	logger   *slog.Logger
}

// New creates a referee.
func New(recorder Recorder, threshold int, logger *slog.Logger) *Referee {
	if logger == nil {
		logger = slog.Default()
	}
	return &Referee{filter: NewFilter(threshold), recorder: recorder, logger: logger}
}

// Filter exposes the underlying frame filter.
func (r *Referee) Filter() *Filter { return r.filter }

// Process observes a frame and, at the threshold, records an incident.
// It returns the record result when a report was made, nil otherwise.
func (r *Referee) Process(ctx context.Context, fr Frame) (*ledger.RecordResult, error) {
	vt, fire := r.filter.Observe(fr)
	if !fire {
		return nil, nil
	}

	conf := fr.Confidence
	if conf <= 0 || conf > 1 {
		conf = 1
	}
	res, err := r.recorder.Record(ctx, ledger.ReportParams{
		StudentID:   fr.StudentID,
		Type:        vt,
		Description: "confirmed by detector after sustained frames",
		Confidence:  conf,
		ObservedAt:  fr.Timestamp,
	})
	if err != nil {
		r.logger.Warn("referee report rejected",
			slog.String("student_id", fr.StudentID.String()),
			slog.String("type", string(vt)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	r.logger.Info("referee confirmed violation",
		slog.String("student_id", fr.StudentID.String()),
		slog.String("type", string(vt)),
		slog.Bool("suppressed", res.Suppressed),
	)
	return res, nil
}
