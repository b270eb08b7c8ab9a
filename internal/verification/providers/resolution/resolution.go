// Package resolution requests a dispute verdict from a remote verification node.
package resolution

import (
	"context"
	"strconv"
	"time"

	"rentguard/internal/proof"
	"rentguard/internal/verification/providers"
	"rentguard/internal/verification/providers/node"
)

const path = "/resolve/dispute"

type Provider struct {
	id     string
	client *node.Client
	now    func() time.Time
}

func New(id string, client *node.Client) *Provider {
	return &Provider{id: id, client: client, now: time.Now}
}

func (p *Provider) ID() string { return p.id }

func (p *Provider) Kind() proof.Kind { return proof.KindResolution }

func (p *Provider) Capabilities() providers.Capabilities {
	return providers.Capabilities{
		Protocol: providers.ProtocolHTTP,
		Kind:     proof.KindResolution,
		Version:  "v1",
		Claims:   []string{proof.ClaimOutcome, proof.ClaimRefundAmount, proof.ClaimDisputeID},
	}
}

func (p *Provider) Health(ctx context.Context) error { return p.client.Ping(ctx, p.id) }

type request struct {
	DisputeID   string          `json:"dispute_id"`
	Evidence    []string        `json:"evidence"`
	Subject     node.SubjectDTO `json:"subject"`
	SubjectHash string          `json:"subject_hash"`
}

type response struct {
	Outcome      string         `json:"outcome"`
	RefundAmount int64          `json:"refund_amount"`
	Reasoning    string         `json:"reasoning"`
	Proof        *node.ProofDTO `json:"proof"`
}

func (p *Provider) Verify(ctx context.Context, req providers.Request) (*providers.Result, error) {
	r, ok := req.(providers.ResolutionRequest)
	if !ok {
		return nil, providers.WrongRequest(p.id, req)
	}
	var resp response
	err := p.client.Post(ctx, p.id, path, request{
		DisputeID:   r.DisputeID,
		Evidence:    r.Evidence,
		Subject:     node.FromSubject(r.Subject),
		SubjectHash: r.SubjectHash().Hex(),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return parseResolutionResponse(p.id, r, resp, p.now())
}

func parseResolutionResponse(providerID string, req providers.ResolutionRequest, resp response, now time.Time) (*providers.Result, error) {
	outcome, err := proof.ParseOutcome(resp.Outcome)
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorBadData, providerID, "unknown outcome", err)
	}
	if resp.RefundAmount < 0 || resp.RefundAmount > req.Subject.Deposit {
		return nil, providers.NewProviderError(providers.ErrorBadData, providerID, "refund outside deposit bounds", nil)
	}
	pr, err := node.DecodeProof(providerID, resp.Proof, req)
	if err != nil {
		return nil, err
	}
	// the signed claims are authoritative; the plain fields must agree with them
	if pr.Claims[proof.ClaimOutcome] != string(outcome) ||
		pr.Claims[proof.ClaimRefundAmount] != strconv.FormatInt(resp.RefundAmount, 10) {
		return nil, providers.NewProviderError(providers.ErrorContractMismatch, providerID, "verdict differs from signed claims", nil)
	}
	return &providers.Result{
		Kind:       proof.KindResolution,
		ProviderID: providerID,
		Passed:     true,
		Degraded:   pr.Degraded,
		CheckedAt:  now,
		Resolution: &providers.ResolutionOutcome{
			Outcome:      outcome,
			RefundAmount: resp.RefundAmount,
			Reasoning:    resp.Reasoning,
		},
		Proof: pr,
	}, nil
}
