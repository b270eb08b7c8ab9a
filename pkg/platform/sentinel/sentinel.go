package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Registries, journals and ledger
// backends return these (optionally wrapped) so the booking service can
// translate them into coded domain errors at its boundary.
//
//   - ErrNotFound: record does not exist
//   - ErrConflict: write collides with existing state (overlap, idempotency mismatch)
//   - ErrExpired: a time-bounded artifact is past its window
//   - ErrInvalidState: record is in the wrong state for the write
//   - ErrUnavailable: backend temporarily unreachable; safe to retry
//
// Validation failures use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
