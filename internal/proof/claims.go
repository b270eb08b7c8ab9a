package proof

import (
	"fmt"
	"maps"
	"strconv"
)

// Claims are small signed facts carried by a proof.
type Claims map[string]string

const (
	ClaimVerified     = "verified"
	ClaimTrustScore   = "trust_score"
	ClaimMethod       = "method"
	ClaimAvailable    = "available"
	ClaimAuthorized   = "authorized"
	ClaimAmount       = "amount"
	ClaimOutcome      = "outcome"
	ClaimRefundAmount = "refund_amount"
	ClaimDisputeID    = "dispute_id"
	ClaimDegraded     = "degraded"
)

func (c Claims) Clone() Claims { return maps.Clone(c) }

// Int64 parses an integer claim.
func (c Claims) Int64(key string) (int64, error) {
	v, ok := c[key]
	if !ok {
		return 0, fmt.Errorf("claim %q missing", key)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("claim %q: %w", key, err)
	}
	return n, nil
}

// Bool parses a boolean claim; a missing claim is false.
func (c Claims) Bool(key string) bool {
	b, _ := strconv.ParseBool(c[key])
	return b
}

// Outcome is a dispute resolution verdict.
type Outcome string

const (
	OutcomeTenantFavorable   Outcome = "tenant_favorable"
	OutcomeLandlordFavorable Outcome = "landlord_favorable"
	OutcomePartial           Outcome = "partial"
)

func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(s); o {
	case OutcomeTenantFavorable, OutcomeLandlordFavorable, OutcomePartial:
		return o, nil
	}
	return "", fmt.Errorf("unknown dispute outcome %q", s)
}
