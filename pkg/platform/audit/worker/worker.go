package worker

import (
	"context"
	"log/slog"

	audit "rentguard/pkg/platform/audit"
)

// Worker drains an event channel into a sink until the channel closes or
// ctx ends. Sink failures are logged and the event is dropped.
type Worker struct {
	sink   audit.Sink
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(sink audit.Sink, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run returns nil once inbox is closed and drained.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.sink.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "audit sink append failed",
					"event_type", event.Type,
					"booking_id", event.BookingID,
					"error", err,
				)
			}
		}
	}
}
