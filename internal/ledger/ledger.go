// Package ledger issues escrow intents (deposit locks and settlements) to
// the backend that actually moves funds. Every intent is idempotent by
// booking id and intent type: retries and concurrent duplicates produce one
// ledger effect.
package ledger

//go:generate mockgen -source=ledger.go -destination=mocks/mocks.go -package=mocks Backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"rentguard/pkg/platform/sentinel"
)

// ErrIdempotencyMismatch means an intent key was reused with a different
// payload.
var ErrIdempotencyMismatch = fmt.Errorf("idempotency key reused with a different payload: %w", sentinel.ErrConflict)

// ErrRejected means the intent was refused and nothing was committed.
var ErrRejected = errors.New("ledger rejected intent")

// Definite reports whether err proves the intent was not applied. Any other
// failure may have committed on the backend; the intent must be re-issued
// with the same key before its outcome is known.
func Definite(err error) bool {
	return errors.Is(err, ErrRejected) ||
		errors.Is(err, ErrIdempotencyMismatch) ||
		errors.Is(err, sentinel.ErrInvalidState)
}

// Backend commits intents. Implementations should themselves treat key as an
// idempotency key where the underlying system supports it.
type Backend interface {
	LockDeposit(ctx context.Context, intent Intent, key string) (*Receipt, error)
	Settle(ctx context.Context, intent Intent, key string) (*Receipt, error)
}

// Ledger is the idempotent front of a Backend.
type Ledger struct {
	backend Backend
	journal Journal
	group   singleflight.Group
	logger  *slog.Logger
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func New(backend Backend, journal Journal, opts ...Option) *Ledger {
	l := &Ledger{
		backend: backend,
		journal: journal,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// LockDeposit locks amount for the booking.
func (l *Ledger) LockDeposit(ctx context.Context, intent Intent) (*Receipt, error) {
	if intent.Type != IntentLockDeposit {
		return nil, fmt.Errorf("lock deposit with %s intent: %w", intent.Type, ErrRejected)
	}
	return l.submit(ctx, intent)
}

// Settle pays out the locked deposit according to the split.
func (l *Ledger) Settle(ctx context.Context, intent Intent) (*Receipt, error) {
	if intent.Type != IntentSettle {
		return nil, fmt.Errorf("settle with %s intent: %w", intent.Type, ErrRejected)
	}
	return l.submit(ctx, intent)
}

func (l *Ledger) submit(ctx context.Context, intent Intent) (*Receipt, error) {
	if err := intent.validate(); err != nil {
		return nil, err
	}
	key := intent.Key()
	fp := intent.Fingerprint()

	v, err, shared := l.group.Do(key, func() (any, error) {
		return l.commit(ctx, intent, key, fp)
	})
	if err != nil {
		return nil, err
	}
	receipt := *(v.(*Receipt))
	if receipt.Fingerprint != fp {
		return nil, fmt.Errorf("%s: %w", key, ErrIdempotencyMismatch)
	}
	if shared {
		receipt.Replayed = true
	}
	return &receipt, nil
}

func (l *Ledger) commit(ctx context.Context, intent Intent, key, fp string) (*Receipt, error) {
	prior, err := l.journal.Get(ctx, key)
	switch {
	case err == nil:
		if prior.Fingerprint != fp {
			return nil, fmt.Errorf("%s: %w", key, ErrIdempotencyMismatch)
		}
		replay := *prior
		replay.Replayed = true
		l.logger.DebugContext(ctx, "ledger intent replayed from journal", "key", key)
		return &replay, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, fmt.Errorf("read ledger journal: %w", err)
	}

	var receipt *Receipt
	switch intent.Type {
	case IntentLockDeposit:
		receipt, err = l.backend.LockDeposit(ctx, intent, key)
	case IntentSettle:
		receipt, err = l.backend.Settle(ctx, intent, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", intent.Type, key, err)
	}
	receipt.Key = key
	receipt.Intent = intent.Type
	receipt.Fingerprint = fp

	stored, err := l.journal.PutIfAbsent(ctx, key, receipt)
	if err != nil {
		// The backend already committed; its own key dedupes the next retry.
		l.logger.WarnContext(ctx, "ledger journal write failed", "key", key, "error", err)
		return receipt, nil
	}
	if stored.Fingerprint != fp {
		return nil, fmt.Errorf("%s: %w", key, ErrIdempotencyMismatch)
	}
	l.logger.InfoContext(ctx, "ledger intent committed",
		"key", key,
		"reference", stored.Reference,
		"amount", stored.Amount,
	)
	return stored, nil
}
