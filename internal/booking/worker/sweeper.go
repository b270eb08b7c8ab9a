// Package worker runs the booking lifecycle's background jobs.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rentguard/pkg/requestcontext"
)

// DefaultInterval is how often the sweeper scans for due bookings.
const DefaultInterval = time.Minute

// Lifecycle is the part of the booking service the sweeper drives.
type Lifecycle interface {
	// CompleteElapsed completes Active bookings whose dispute window closed.
	CompleteElapsed(ctx context.Context) (int, error)
	// RecoverStalled resumes ledger intents stuck past the pending timeout.
	RecoverStalled(ctx context.Context) (int, error)
}

// Sweeper completes elapsed stays and recovers stalled ledger intents on a
// fixed interval.
type Sweeper struct {
	lifecycle Lifecycle
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time each sweep pins on its context.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSweeper(lifecycle Lifecycle, opts ...Option) *Sweeper {
	s := &Sweeper{
		lifecycle: lifecycle,
		interval:  DefaultInterval,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps until ctx is cancelled. Sweep failures are logged and retried
// on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Sweep runs one pass with a single pinned "now". Exported for tests and
// manual triggers.
func (s *Sweeper) Sweep(ctx context.Context) {
	ctx = requestcontext.WithTime(ctx, s.now())
	ctx = requestcontext.WithRequestID(ctx, "sweep-"+uuid.NewString())

	recovered, err := s.lifecycle.RecoverStalled(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "recovering stalled ledger intents", "error", err)
	}
	if recovered > 0 {
		s.logger.InfoContext(ctx, "recovered stalled ledger intents", "count", recovered)
	}

	completed, err := s.lifecycle.CompleteElapsed(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "completing elapsed bookings", "error", err)
	}
	if completed > 0 {
		s.logger.InfoContext(ctx, "completed elapsed bookings", "count", completed)
	}
}
