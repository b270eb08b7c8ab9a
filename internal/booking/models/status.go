package models

import (
	"slices"

	"rentguard/internal/proof"
	dErrors "rentguard/pkg/domain-errors"
)

// Status is a booking's lifecycle state.
type Status string

const (
	StatusRequested Status = "requested"
	StatusVerified  Status = "verified"
	StatusConfirmed Status = "confirmed"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusDisputed  Status = "disputed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusRequested, StatusVerified, StatusConfirmed, StatusActive,
		StatusCompleted, StatusCancelled, StatusDisputed:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) String() string { return string(s) }

// Transition names an edge of the lifecycle.
type Transition string

const (
	TransitionVerifyIdentity      Transition = "verify_identity"
	TransitionConfirmAvailability Transition = "confirm_availability"
	TransitionActivateEscrow      Transition = "activate_escrow"
	TransitionComplete            Transition = "complete"
	TransitionDispute             Transition = "dispute"
	TransitionResolve             Transition = "resolve"
	TransitionCancel              Transition = "cancel"
)

// LedgerIntent is the fund movement a transition commits before it applies.
type LedgerIntent string

const (
	LedgerNone   LedgerIntent = ""
	LedgerLock   LedgerIntent = "lock_deposit"
	LedgerSettle LedgerIntent = "settle"
)

// Rule is one row of the transition table.
type Rule struct {
	From []Status
	To   Status
	// Proof is the proof kind the transition requires, or "" for none.
	Proof  proof.Kind
	Ledger LedgerIntent
}

var transitionTable = map[Transition]Rule{
	TransitionVerifyIdentity:      {From: []Status{StatusRequested}, To: StatusVerified, Proof: proof.KindIdentity},
	TransitionConfirmAvailability: {From: []Status{StatusVerified}, To: StatusConfirmed, Proof: proof.KindAvailability},
	TransitionActivateEscrow:      {From: []Status{StatusConfirmed}, To: StatusActive, Proof: proof.KindEscrow, Ledger: LedgerLock},
	TransitionComplete:            {From: []Status{StatusActive}, To: StatusCompleted, Ledger: LedgerSettle},
	TransitionDispute:             {From: []Status{StatusActive}, To: StatusDisputed},
	TransitionResolve:             {From: []Status{StatusDisputed}, To: StatusCompleted, Proof: proof.KindResolution, Ledger: LedgerSettle},
	TransitionCancel:              {From: []Status{StatusRequested, StatusConfirmed}, To: StatusCancelled},
}

// Rule returns the table row for t.
func (t Transition) Rule() (Rule, bool) {
	r, ok := transitionTable[t]
	return r, ok
}

// Allows reports whether t may leave from.
func (r Rule) Allows(from Status) bool { return slices.Contains(r.From, from) }

func ParseTransition(s string) (Transition, error) {
	t := Transition(s)
	if _, ok := transitionTable[t]; !ok {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown transition %q", s)
	}
	return t, nil
}

// ProofTransitions are the forward edges driven by a verification proof.
var ProofTransitions = []Transition{
	TransitionVerifyIdentity,
	TransitionConfirmAvailability,
	TransitionActivateEscrow,
}
