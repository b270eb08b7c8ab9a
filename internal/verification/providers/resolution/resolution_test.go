package resolution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentguard/internal/proof"
	"rentguard/internal/verification/providers"
	"rentguard/internal/verification/providers/node"
)

func resolutionRequest() providers.ResolutionRequest {
	return providers.ResolutionRequest{
		Subject: proof.Subject{
			BookingID:  4,
			TenantID:   "tenant-1",
			PropertyID: "P1",
			CheckIn:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			CheckOut:   time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
			Deposit:    30_000,
		},
		DisputeID: "dispute-4",
		Evidence:  []string{"photo-1"},
	}
}

func signedVerdict(t *testing.T, req providers.ResolutionRequest, outcome, refund string) *node.ProofDTO {
	t.Helper()
	signer, err := proof.GenerateSecp256k1Signer()
	require.NoError(t, err)
	p, err := proof.Issue(signer, proof.Draft{
		Kind:     proof.KindResolution,
		Subject:  req.SubjectHash(),
		IssuedAt: time.Now(),
		Claims:   proof.Claims{proof.ClaimOutcome: outcome, proof.ClaimRefundAmount: refund, proof.ClaimDisputeID: req.DisputeID},
	})
	require.NoError(t, err)
	dto := node.FromProof(p)
	return &dto
}

func TestResolutionResponseParser(t *testing.T) {
	req := resolutionRequest()

	t.Run("parses partial verdict", func(t *testing.T) {
		res, err := parseResolutionResponse("p", req, response{
			Outcome:      "partial",
			RefundAmount: 12_000,
			Proof:        signedVerdict(t, req, "partial", "12000"),
		}, time.Now())
		require.NoError(t, err)
		assert.True(t, res.Passed)
		assert.Equal(t, proof.OutcomePartial, res.Resolution.Outcome)
		assert.Equal(t, int64(12_000), res.Resolution.RefundAmount)
		require.NoError(t, providers.CheckResult(proof.KindResolution, res))
	})

	t.Run("refund above deposit is bad data", func(t *testing.T) {
		_, err := parseResolutionResponse("p", req, response{Outcome: "partial", RefundAmount: 30_001}, time.Now())
		assert.Equal(t, providers.ErrorBadData, providers.GetCategory(err))
	})

	t.Run("unknown outcome is bad data", func(t *testing.T) {
		_, err := parseResolutionResponse("p", req, response{Outcome: "split_evenly"}, time.Now())
		assert.Equal(t, providers.ErrorBadData, providers.GetCategory(err))
	})

	t.Run("plain fields must match signed claims", func(t *testing.T) {
		_, err := parseResolutionResponse("p", req, response{
			Outcome:      "tenant_favorable",
			RefundAmount: 30_000,
			Proof:        signedVerdict(t, req, "partial", "100"),
		}, time.Now())
		assert.Equal(t, providers.ErrorContractMismatch, providers.GetCategory(err))
	})
}
