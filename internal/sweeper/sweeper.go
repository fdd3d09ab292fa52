// Package sweeper closes exam sessions whose end time has passed.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
)

// DefaultInterval is the tick period when none is configured.
const DefaultInterval = time.Minute

// Closer is the slice of the engine the sweeper drives.
type Closer interface {
	ExpiredSessions(ctx context.Context) ([]domain.ExamSession, error)
	CloseIfActive(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

// Failure is one session the tick could not close.
type Failure struct {
	SessionID uuid.UUID
	Err       error
}

func (f Failure) Error() string {
	return fmt.Sprintf("close session %s: %v", f.SessionID, f.Err)
}

// Result reports one tick. A session is counted in Closed only if this tick
// flipped it; one closed concurrently by its owner is skipped silently.
type Result struct {
	Scanned  int
	Closed   int
	Failures []Failure
}

// Sweeper runs Tick on a fixed interval. It never touches students.
type Sweeper struct {
	closer   Closer
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a sweeper; a non-positive interval uses DefaultInterval.
func New(closer Closer, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{closer: closer, interval: interval, logger: logger}
}

// Tick closes every expired session independently. A listing failure is
// returned as an error; per-session failures are collected in the result.
func (s *Sweeper) Tick(ctx context.Context) (Result, error) {
	expired, err := s.closer.ExpiredSessions(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list expired sessions: %w", err)
	}

	res := Result{Scanned: len(expired)}
	for _, es := range expired {
		closed, err := s.closer.CloseIfActive(ctx, es.ID)
		if err != nil {
			res.Failures = append(res.Failures, Failure{SessionID: es.ID, Err: err})
			continue
		}
		if closed {
			res.Closed++
		}
	}
	return res, nil
}

// Run ticks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("session sweeper started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session sweeper stopped")
			return nil
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Sweeper) runTick(ctx context.Context) {
	res, err := s.Tick(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("sweep failed", "error", err)
		}
		return
	}
	for _, f := range res.Failures {
		s.logger.Error("sweep could not close session", "session_id", f.SessionID.String(), "error", f.Err)
	}
	if res.Closed > 0 || len(res.Failures) > 0 {
		s.logger.Info("sweep complete", "scanned", res.Scanned, "closed", res.Closed, "failed", len(res.Failures))
	}
}

// Start runs the sweeper in a goroutine. Stop waits for it to exit.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		_ = s.Run(ctx)
	}()
}

// Stop cancels a started sweeper and waits for the current tick to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
