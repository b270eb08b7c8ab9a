package audit

import (
	"context"
	"time"

	id "rentguard/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so sinks
// can apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers fund movements and lifecycle commitments.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers rejected proofs and degraded acceptances.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

type EventType string

const (
	EventBookingRequested    EventType = "booking_requested"
	EventBookingTransitioned EventType = "booking_transitioned"
	EventBookingCancelled    EventType = "booking_cancelled"
	EventDisputeRaised       EventType = "dispute_raised"
	EventDepositLocked       EventType = "deposit_locked"
	EventBookingSettled      EventType = "booking_settled"
	EventProofRejected       EventType = "proof_rejected"
	EventDegradedAccepted    EventType = "degraded_proof_accepted"
)

var eventCategories = map[EventType]EventCategory{
	EventDepositLocked:       CategoryCompliance,
	EventBookingSettled:      CategoryCompliance,
	EventBookingTransitioned: CategoryCompliance,
	EventBookingCancelled:    CategoryCompliance,
	EventDisputeRaised:       CategoryCompliance,

	EventProofRejected:    CategorySecurity,
	EventDegradedAccepted: CategorySecurity,

	EventBookingRequested: CategoryOperations,
}

// Category returns the category for t. Unknown events are operations.
func (t EventType) Category() EventCategory {
	if cat, ok := eventCategories[t]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted by the booking service for every committed lifecycle
// change. Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID         string        `json:"id"`
	Type       EventType     `json:"type"`
	Category   EventCategory `json:"category"`
	Timestamp  time.Time     `json:"timestamp"`
	BookingID  id.BookingID  `json:"booking_id"`
	TenantID   id.TenantID   `json:"tenant_id,omitempty"`
	PropertyID id.PropertyID `json:"property_id,omitempty"`
	Transition string        `json:"transition,omitempty"`
	From       string        `json:"from,omitempty"`
	To         string        `json:"to,omitempty"`
	Actor      string        `json:"actor,omitempty"`
	ProofKind  string        `json:"proof_kind,omitempty"`
	Degraded   bool          `json:"degraded,omitempty"`
	// VerificationHash is the booking's chain head after the change.
	VerificationHash string `json:"verification_hash,omitempty"`
	LedgerReference  string `json:"ledger_reference,omitempty"`
	Amount           int64  `json:"amount,omitempty"`
	Reason           string `json:"reason,omitempty"`
	RequestID        string `json:"request_id,omitempty"`
}

// Sink receives events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Store is a queryable Sink.
type Store interface {
	Sink
	ListByBooking(ctx context.Context, bookingID id.BookingID) ([]Event, error)
}

// Emitter is what domain services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }
