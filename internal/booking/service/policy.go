package service

import (
	"fmt"
	"time"

	"rentguard/internal/booking/models"
	"rentguard/internal/proof"
)

// DefaultDisputeWindow is how long after checkout a party may still raise a
// dispute before the booking completes on its own.
const DefaultDisputeWindow = 48 * time.Hour

// DegradedPolicy lists the proof kinds for which a degraded (fallback)
// proof is acceptable.
type DegradedPolicy map[proof.Kind]bool

func (p DegradedPolicy) Allows(kind proof.Kind) bool { return p[kind] }

// StrictDegradedPolicy accepts no degraded proofs.
func StrictDegradedPolicy() DegradedPolicy { return DegradedPolicy{} }

// SplitPolicy turns a dispute verdict into a deposit split.
type SplitPolicy func(outcome proof.Outcome, refund, deposit int64) (models.Split, error)

// DefaultSplit pays refund to the tenant and the rest to the host, except
// that a landlord-favorable verdict pays the whole deposit to the host.
func DefaultSplit(outcome proof.Outcome, refund, deposit int64) (models.Split, error) {
	if refund < 0 || refund > deposit {
		return models.Split{}, fmt.Errorf("refund %d outside [0, %d]", refund, deposit)
	}
	switch outcome {
	case proof.OutcomeTenantFavorable, proof.OutcomePartial:
		return models.Split{TenantRefund: refund, HostPayout: deposit - refund}, nil
	case proof.OutcomeLandlordFavorable:
		return models.Split{HostPayout: deposit}, nil
	}
	return models.Split{}, fmt.Errorf("unknown outcome %q", outcome)
}

// Policy groups the configurable decisions of the lifecycle.
type Policy struct {
	Degraded      DegradedPolicy
	Split         SplitPolicy
	DisputeWindow time.Duration
	// PendingTimeout is how long a ledger intent may stay in flight before
	// the sweeper resumes it.
	PendingTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Degraded:       StrictDegradedPolicy(),
		Split:          DefaultSplit,
		DisputeWindow:  DefaultDisputeWindow,
		PendingTimeout: 2 * time.Minute,
	}
}
