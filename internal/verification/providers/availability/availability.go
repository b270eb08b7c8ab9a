// Package availability checks a property's calendar for a stay via a remote
// verification node.
package availability

import (
	"context"
	"time"

	"rentguard/internal/proof"
	"rentguard/internal/verification/providers"
	"rentguard/internal/verification/providers/node"
)

const path = "/check/availability"

type Provider struct {
	id     string
	client *node.Client
	now    func() time.Time
}

func New(id string, client *node.Client) *Provider {
	return &Provider{id: id, client: client, now: time.Now}
}

func (p *Provider) ID() string { return p.id }

func (p *Provider) Kind() proof.Kind { return proof.KindAvailability }

func (p *Provider) Capabilities() providers.Capabilities {
	return providers.Capabilities{
		Protocol: providers.ProtocolHTTP,
		Kind:     proof.KindAvailability,
		Version:  "v1",
		Claims:   []string{proof.ClaimAvailable},
	}
}

func (p *Provider) Health(ctx context.Context) error { return p.client.Ping(ctx, p.id) }

type request struct {
	PropertyID  string          `json:"property_id"`
	CheckIn     time.Time       `json:"check_in"`
	CheckOut    time.Time       `json:"check_out"`
	Subject     node.SubjectDTO `json:"subject"`
	SubjectHash string          `json:"subject_hash"`
}

type response struct {
	Available bool           `json:"available"`
	Proof     *node.ProofDTO `json:"proof"`
}

func (p *Provider) Verify(ctx context.Context, req providers.Request) (*providers.Result, error) {
	r, ok := req.(providers.AvailabilityRequest)
	if !ok {
		return nil, providers.WrongRequest(p.id, req)
	}
	var resp response
	err := p.client.Post(ctx, p.id, path, request{
		PropertyID:  string(r.Subject.PropertyID),
		CheckIn:     r.Subject.CheckIn.UTC(),
		CheckOut:    r.Subject.CheckOut.UTC(),
		Subject:     node.FromSubject(r.Subject),
		SubjectHash: r.SubjectHash().Hex(),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return parseAvailabilityResponse(p.id, r, resp, p.now())
}

func parseAvailabilityResponse(providerID string, req providers.AvailabilityRequest, resp response, now time.Time) (*providers.Result, error) {
	res := &providers.Result{
		Kind:         proof.KindAvailability,
		ProviderID:   providerID,
		Passed:       resp.Available,
		CheckedAt:    now,
		Availability: &providers.AvailabilityOutcome{Available: resp.Available},
	}
	if !resp.Available {
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
