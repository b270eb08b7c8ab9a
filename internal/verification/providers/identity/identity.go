// Package identity verifies that a tenant is who they claim to be, via a
// remote verification node.
package identity

import (
	"context"
	"time"

	"rentguard/internal/proof"
	"rentguard/internal/verification/providers"
	"rentguard/internal/verification/providers/node"
)

const path = "/verify/identity"

type Provider struct {
	id     string
	client *node.Client
	now    func() time.Time
}

func New(id string, client *node.Client) *Provider {
	return &Provider{id: id, client: client, now: time.Now}
}

func (p *Provider) ID() string { return p.id }

func (p *Provider) Kind() proof.Kind { return proof.KindIdentity }

func (p *Provider) Capabilities() providers.Capabilities {
	return providers.Capabilities{
		Protocol: providers.ProtocolHTTP,
		Kind:     proof.KindIdentity,
		Version:  "v1",
		Claims:   []string{proof.ClaimVerified, proof.ClaimTrustScore, proof.ClaimMethod},
	}
}

func (p *Provider) Health(ctx context.Context) error { return p.client.Ping(ctx, p.id) }

type request struct {
	SubjectID   string          `json:"subject_id"`
	Subject     node.SubjectDTO `json:"subject"`
	SubjectHash string          `json:"subject_hash"`
}

type response struct {
	Verified   bool           `json:"verified"`
	TrustScore float64        `json:"trust_score"`
	Method     string         `json:"method"`
	Proof      *node.ProofDTO `json:"proof"`
}

func (p *Provider) Verify(ctx context.Context, req providers.Request) (*providers.Result, error) {
	r, ok := req.(providers.IdentityRequest)
	if !ok {
		return nil, providers.WrongRequest(p.id, req)
	}
	var resp response
	err := p.client.Post(ctx, p.id, path, request{
		SubjectID:   r.SubjectID,
		Subject:     node.FromSubject(r.Subject),
		SubjectHash: r.SubjectHash().Hex(),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return parseIdentityResponse(p.id, r, resp, p.now())
}

func parseIdentityResponse(providerID string, req providers.IdentityRequest, resp response, now time.Time) (*providers.Result, error) {
	if resp.TrustScore < 0 || resp.TrustScore > 1 {
		return nil, providers.NewProviderError(providers.ErrorBadData, providerID, "trust score out of range", nil)
	}
	res := &providers.Result{
		Kind:       proof.KindIdentity,
		ProviderID: providerID,
		Passed:     resp.Verified,
		CheckedAt:  now,
		Identity: &providers.IdentityOutcome{
			Verified:   resp.Verified,
			TrustScore: resp.TrustScore,
			Method:     resp.Method,
		},
	}
	if !resp.Verified {
		return res, nil
	}
	pr, err := node.DecodeProof(providerID, resp.Proof, req)
	if err != nil {
		return nil, err
	}
	res.Proof = pr
	res.Degraded = pr.Degraded
	return res, nil
}
