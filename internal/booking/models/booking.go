package models

import (
	"fmt"
	"time"

	"rentguard/internal/proof"
	id "rentguard/pkg/domain"
	dErrors "rentguard/pkg/domain-errors"
)

// Booking is one reservation attempt.
//
// Invariants:
//   - Dates.CheckIn < Dates.CheckOut
//   - DepositAmount >= 0
//   - Proofs is append-only and VerificationHash == proof.Head(Proofs)
//   - Status only changes through ApplyTransition, following the transition table
//   - Version increases on every committed mutation
//
// Records are never deleted; terminal bookings are kept for audit.
type Booking struct {
	ID               id.BookingID   `json:"id"`
	TenantID         id.TenantID    `json:"tenant_id"`
	PropertyID       id.PropertyID  `json:"property_id"`
	HostID           id.HostID      `json:"host_id"`
	Dates            DateRange      `json:"dates"`
	DepositAmount    int64          `json:"deposit_amount"`
	Status           Status         `json:"status"`
	Proofs           []*proof.Proof `json:"proofs"`
	VerificationHash proof.Hash     `json:"verification_hash"`
	History          []StatusChange `json:"history"`
	Pending          *PendingIntent `json:"pending,omitempty"`
	EscrowReference  string         `json:"escrow_reference,omitempty"`
	Dispute          *Dispute       `json:"dispute,omitempty"`
	Settlement       *Settlement    `json:"settlement,omitempty"`
	Version          uint64         `json:"version"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// StatusChange is one entry of the lifecycle history.
type StatusChange struct {
	From       Status     `json:"from"`
	To         Status     `json:"to"`
	Transition Transition `json:"transition"`
	Actor      string     `json:"actor"`
	Degraded   bool       `json:"degraded"`
	At         time.Time  `json:"at"`
}

// PendingIntent marks a ledger call in flight for a transition. While set,
// no other transition may start on the booking.
type PendingIntent struct {
	Token      string       `json:"token"`
	Transition Transition   `json:"transition"`
	Intent     LedgerIntent `json:"intent"`
	Proof      *proof.Proof `json:"proof,omitempty"`
	Split      *Split       `json:"split,omitempty"`
	Outcome    string       `json:"outcome,omitempty"`
	Since      time.Time    `json:"since"`
}

// Split divides the deposit between tenant and host.
type Split struct {
	TenantRefund int64 `json:"tenant_refund"`
	HostPayout   int64 `json:"host_payout"`
}

func (s Split) Total() int64 { return s.TenantRefund + s.HostPayout }

type Dispute struct {
	ID       string    `json:"id"`
	RaisedBy Actor     `json:"raised_by"`
	Reason   string    `json:"reason,omitempty"`
	Evidence []string  `json:"evidence,omitempty"`
	RaisedAt time.Time `json:"raised_at"`
}

type Settlement struct {
	Outcome   string    `json:"outcome"`
	Split     Split     `json:"split"`
	Reference string    `json:"reference"`
	SettledAt time.Time `json:"settled_at"`
}

// NewBooking builds a Requested booking. The registry assigns the id.
func NewBooking(tenant id.TenantID, property id.PropertyID, host id.HostID, dates DateRange, deposit int64, now time.Time) (*Booking, error) {
	if tenant == "" || property == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant and property are required")
	}
	if !dates.CheckIn.Before(dates.CheckOut) {
		return nil, dErrors.New(dErrors.CodeInvalidDateRange, "check-in must be before check-out")
	}
	if deposit < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "deposit must not be negative")
	}
	return &Booking{
		TenantID:         tenant,
		PropertyID:       property,
		HostID:           host,
		Dates:            dates,
		DepositAmount:    deposit,
		Status:           StatusRequested,
		VerificationHash: proof.Genesis,
		History: []StatusChange{{
			To:    StatusRequested,
			Actor: Actor{ID: string(tenant), Role: RoleTenant}.String(),
			At:    now,
		}},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Clone returns a deep copy. Proofs are immutable and shared.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.Proofs = append([]*proof.Proof(nil), b.Proofs...)
	c.History = append([]StatusChange(nil), b.History...)
	if b.Pending != nil {
		p := *b.Pending
		if b.Pending.Split != nil {
			s := *b.Pending.Split
			p.Split = &s
		}
		c.Pending = &p
	}
	if b.Dispute != nil {
		d := *b.Dispute
		d.Evidence = append([]string(nil), b.Dispute.Evidence...)
		c.Dispute = &d
	}
	if b.Settlement != nil {
		s := *b.Settlement
		c.Settlement = &s
	}
	return &c
}

func (b *Booking) IsTerminal() bool { return b.Status.IsTerminal() }

// Subject is the data the next proof must be bound to.
func (b *Booking) Subject() proof.Subject {
	return proof.Subject{
		BookingID:  b.ID,
		TenantID:   b.TenantID,
		PropertyID: b.PropertyID,
		CheckIn:    b.Dates.CheckIn,
		CheckOut:   b.Dates.CheckOut,
		Deposit:    b.DepositAmount,
		ChainHead:  b.VerificationHash,
	}
}

// CanApply checks t against the transition table and in-flight intents.
func (b *Booking) CanApply(t Transition) error {
	rule, ok := t.Rule()
	if !ok {
		return dErrors.Newf(dErrors.CodeValidation, "unknown transition %q", t)
	}
	if !rule.Allows(b.Status) {
		if t == TransitionCancel {
			return dErrors.Newf(dErrors.CodeNotCancellable, "booking %s is %s and can no longer be cancelled", b.ID, b.Status)
		}
		return dErrors.Newf(dErrors.CodeIllegalTransition, "cannot %s booking %s from %s", t, b.ID, b.Status)
	}
	if b.Pending != nil {
		return dErrors.Newf(dErrors.CodeStale, "booking %s has a %s in flight", b.ID, b.Pending.Intent)
	}
	return nil
}

// ApplyTransition moves the booking along t, appending p to the proof chain
// when non-nil. Call CanApply first.
func (b *Booking) ApplyTransition(t Transition, p *proof.Proof, actor Actor, now time.Time) {
	rule, _ := t.Rule()
	if p != nil {
		b.Proofs = append(b.Proofs, p)
		b.VerificationHash = proof.Link(b.VerificationHash, p)
	}
	b.History = append(b.History, StatusChange{
		From:       b.Status,
		To:         rule.To,
		Transition: t,
		Actor:      actor.String(),
		Degraded:   p != nil && p.Degraded,
		At:         now,
	})
	b.Status = rule.To
	b.Pending = nil
	b.touch(now)
}

// BeginIntent records a ledger call about to be made for t.
func (b *Booking) BeginIntent(pending PendingIntent, now time.Time) {
	pending.Since = now
	b.Pending = &pending
	b.touch(now)
}

// ClearIntent drops the in-flight marker if it still carries token.
func (b *Booking) ClearIntent(token string, now time.Time) bool {
	if b.Pending == nil || b.Pending.Token != token {
		return false
	}
	b.Pending = nil
	b.touch(now)
	return true
}

func (b *Booking) touch(now time.Time) {
	b.UpdatedAt = now
	b.Version++
}

// Degraded reports whether any accepted proof was a fallback proof.
func (b *Booking) Degraded() bool {
	for _, p := range b.Proofs {
		if p.Degraded {
			return true
		}
	}
	return false
}

// VerificationLevel is "unverified", "degraded" or "verified".
func (b *Booking) VerificationLevel() string {
	switch {
	case len(b.Proofs) == 0:
		return "unverified"
	case b.Degraded():
		return "degraded"
	default:
		return "verified"
	}
}

// ConfirmationCode is the human-facing reference of the booking.
func (b *Booking) ConfirmationCode() string {
	return fmt.Sprintf("VR-%06d", uint64(b.ID))
}

// Statuses returns the observed status sequence.
func (b *Booking) Statuses() []Status {
	out := make([]Status, 0, len(b.History))
	for _, h := range b.History {
		out = append(out, h.To)
	}
	return out
}
