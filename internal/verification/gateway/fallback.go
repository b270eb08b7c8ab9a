package gateway

import (
	"fmt"
	"strconv"
	"time"

	"rentguard/internal/proof"
	"rentguard/internal/verification/providers"
)

const fallbackMethod = "fallback"

// Fallback builds the deterministic degraded result for req: the same
// request and time always yield the same proof. Consumers tell it apart by
// Result.Degraded, Proof.Degraded and the signed "degraded" claim.
func Fallback(req providers.Request, signer proof.Signer, now time.Time, providerID string) (*providers.Result, error) {
	res := &providers.Result{
		Kind:       req.Kind(),
		ProviderID: "fallback:" + providerID,
		Passed:     true,
		Degraded:   true,
		CheckedAt:  now,
	}
	claims := proof.Claims{proof.ClaimDegraded: "true"}

	switch r := req.(type) {
	case providers.IdentityRequest:
		res.Identity = &providers.IdentityOutcome{Verified: true, TrustScore: 0, Method: fallbackMethod}
		claims[proof.ClaimVerified] = "true"
		claims[proof.ClaimTrustScore] = "0.00"
		claims[proof.ClaimMethod] = fallbackMethod
	case providers.AvailabilityRequest:
		res.Availability = &providers.AvailabilityOutcome{Available: true}
		claims[proof.ClaimAvailable] = "true"
	case providers.EscrowRequest:
		res.Escrow = &providers.EscrowOutcome{Authorized: true, Amount: r.Amount}
		claims[proof.ClaimAuthorized] = "true"
		claims[proof.ClaimAmount] = strconv.FormatInt(r.Amount, 10)
	case providers.ResolutionRequest:
		res.Resolution = &providers.ResolutionOutcome{
			Outcome:      proof.OutcomeTenantFavorable,
			RefundAmount: r.Subject.Deposit,
			Reasoning:    "resolution provider unreachable; deposit returned",
		}
		claims[proof.ClaimOutcome] = string(proof.OutcomeTenantFavorable)
		claims[proof.ClaimRefundAmount] = strconv.FormatInt(r.Subject.Deposit, 10)
		claims[proof.ClaimDisputeID] = r.DisputeID
	default:
		return nil, fmt.Errorf("no fallback for %T", req)
	}

	p, err := proof.Issue(signer, proof.Draft{
		Kind:     req.Kind(),
		Subject:  req.SubjectHash(),
		IssuedAt: now,
		Claims:   claims,
		Degraded: true,
	})
	if err != nil {
		return nil, err
	}
	res.Proof = p
	return res, nil
}
