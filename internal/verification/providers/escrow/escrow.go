// Package escrow asks a remote verification node to authorize holding a
// booking's deposit.
package escrow

import (
	"context"
	"time"

	"rentguard/internal/proof"
	"rentguard/internal/verification/providers"
	"rentguard/internal/verification/providers/node"
)

const path = "/authorize/escrow"

type Provider struct {
	id     string
	client *node.Client
	now    func() time.Time
}

func New(id string, client *node.Client) *Provider {
	return &Provider{id: id, client: client, now: time.Now}
}

func (p *Provider) ID() string { return p.id }

func (p *Provider) Kind() proof.Kind { return proof.KindEscrow }

func (p *Provider) Capabilities() providers.Capabilities {
	return providers.Capabilities{
		Protocol: providers.ProtocolHTTP,
		Kind:     proof.KindEscrow,
		Version:  "v1",
		Claims:   []string{proof.ClaimAuthorized, proof.ClaimAmount},
	}
}

func (p *Provider) Health(ctx context.Context) error { return p.client.Ping(ctx, p.id) }

type request struct {
	BookingID   uint64          `json:"booking_id"`
	Amount      int64           `json:"amount"`
	Subject     node.SubjectDTO `json:"subject"`
	SubjectHash string          `json:"subject_hash"`
}

type response struct {
	Authorized bool           `json:"authorized"`
	Amount     int64          `json:"amount"`
	Proof      *node.ProofDTO `json:"proof"`
}

func (p *Provider) Verify(ctx context.Context, req providers.Request) (*providers.Result, error) {
	r, ok := req.(providers.EscrowRequest)
	if !ok {
		return nil, providers.WrongRequest(p.id, req)
	}
	var resp response
	err := p.client.Post(ctx, p.id, path, request{
		BookingID:   uint64(r.Subject.BookingID),
		Amount:      r.Amount,
		Subject:     node.FromSubject(r.Subject),
		SubjectHash: r.SubjectHash().Hex(),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return parseEscrowResponse(p.id, r, resp, p.now())
}

func parseEscrowResponse(providerID string, req providers.EscrowRequest, resp response, now time.Time) (*providers.Result, error) {
	res := &providers.Result{
		Kind:       proof.KindEscrow,
		ProviderID: providerID,
		Passed:     resp.Authorized,
		CheckedAt:  now,
		Escrow:     &providers.EscrowOutcome{Authorized: resp.Authorized, Amount: resp.Amount},
	}
	if !resp.Authorized {
		return res, nil
	}
	if resp.Amount != req.Amount {
		return nil, providers.NewProviderError(providers.ErrorBadData, providerID, "authorized amount differs from requested deposit", nil)
	}
	pr, err := node.DecodeProof(providerID, resp.Proof, req)
	if err != nil {
		return nil, err
	}
	res.Proof = pr
	res.Degraded = pr.Degraded
	return res, nil
}
