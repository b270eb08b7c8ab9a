// Package publisher fans audit events out to a store and any number of
// extra sinks, synchronously or through a bounded buffer.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	id "rentguard/pkg/domain"
	audit "rentguard/pkg/platform/audit"
	"rentguard/pkg/platform/audit/worker"
)

var (
	ErrBufferFull = errors.New("audit buffer full")
	ErrClosed     = errors.New("audit publisher closed")
)

type Publisher struct {
	store  audit.Store
	sinks  []audit.Sink
	logger *slog.Logger
	now    func() time.Time

	buffer int
	mu     sync.RWMutex
	closed bool
	inbox  chan audit.Event
	done   chan struct{}
}

type Option func(*Publisher)

// WithAsyncBuffer makes Emit enqueue into a buffer of size n drained by a
// background worker. Emit fails with ErrBufferFull instead of blocking.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.buffer = n
		}
	}
}

// WithSinks adds sinks that receive every event after the store.
func WithSinks(sinks ...audit.Sink) Option {
	return func(p *Publisher) { p.sinks = append(p.sinks, sinks...) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer > 0 {
		p.inbox = make(chan audit.Event, p.buffer)
		p.done = make(chan struct{})
		w := worker.NewWorker(fanout{p}, p.inbox, p.logger)
		go func() {
			defer close(p.done)
			_ = w.Run(context.Background())
		}()
	}
	return p
}

// Emit stamps and records event.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.Category == "" {
		event.Category = event.Type.Category()
	}

	if p.inbox == nil {
		return fanout{p}.Append(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"event_type", event.Type,
			"booking_id", event.BookingID,
		)
		return ErrBufferFull
	}
}

// List returns the stored events of a booking.
func (p *Publisher) List(ctx context.Context, bookingID id.BookingID) ([]audit.Event, error) {
	return p.store.ListByBooking(ctx, bookingID)
}

// Close drains the buffer. Safe to call more than once.
func (p *Publisher) Close() {
	if p.inbox == nil {
		return
	}
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
	p.mu.Unlock()
	<-p.done
}

type fanout struct{ p *Publisher }

func (f fanout) Append(ctx context.Context, event audit.Event) error {
	if err := f.p.store.Append(ctx, event); err != nil {
		return err
	}
	for _, s := range f.p.sinks {
		if err := s.Append(ctx, event); err != nil {
			f.p.logger.WarnContext(ctx, "audit sink failed",
				"event_type", event.Type,
				"booking_id", event.BookingID,
				"error", err,
			)
		}
	}
	return nil
}
