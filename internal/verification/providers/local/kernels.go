// Package local provides in-process verification kernels. They sign real
// proofs with a local key and are used for single-node deployments and tests.
package local

import (
	"context"
	"strconv"
	"time"

	"rentguard/internal/proof"
	"rentguard/internal/verification/providers"
	id "rentguard/pkg/domain"
)

// DefaultTrustScore is reported for every verified identity.
const DefaultTrustScore = 0.85

type base struct {
	id     string
	kind   proof.Kind
	signer proof.Signer
	now    func() time.Time
}

type Option func(*base)

func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}

func newBase(providerID string, kind proof.Kind, signer proof.Signer, opts []Option) base {
	b := base{id: providerID, kind: kind, signer: signer, now: time.Now}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) ID() string { return b.id }

func (b *base) Kind() proof.Kind { return b.kind }

func (b *base) Health(context.Context) error { return nil }

func (b *base) capabilities(claims ...string) providers.Capabilities {
	return providers.Capabilities{Protocol: providers.ProtocolLocal, Kind: b.kind, Version: "v1", Claims: claims}
}

func (b *base) result(now time.Time) *providers.Result {
	return &providers.Result{Kind: b.kind, ProviderID: b.id, CheckedAt: now}
}

func (b *base) sign(req providers.Request, now time.Time, claims proof.Claims) (*proof.Proof, error) {
	p, err := proof.Issue(b.signer, proof.Draft{
		Kind:     b.kind,
		Subject:  req.SubjectHash(),
		IssuedAt: now,
		Claims:   claims,
	})
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorInternal, b.id, "sign proof", err)
	}
	return p, nil
}

// Identity verifies every subject not on its deny list.
type Identity struct {
	base
	denied map[string]bool
}

func NewIdentity(providerID string, signer proof.Signer, denied []string, opts ...Option) *Identity {
	d := make(map[string]bool, len(denied))
	for _, s := range denied {
		d[s] = true
	}
	return &Identity{base: newBase(providerID, proof.KindIdentity, signer, opts), denied: d}
}

func (k *Identity) Capabilities() providers.Capabilities {
	return k.capabilities(proof.ClaimVerified, proof.ClaimTrustScore, proof.ClaimMethod)
}

func (k *Identity) Verify(ctx context.Context, req providers.Request) (*providers.Result, error) {
	r, ok := req.(providers.IdentityRequest)
	if !ok {
		return nil, providers.WrongRequest(k.id, req)
	}
	now := k.now()
	res := k.result(now)
	if k.denied[r.SubjectID] {
		res.Identity = &providers.IdentityOutcome{Verified: false, Method: "social_auth"}
		return res, nil
	}
	res.Identity = &providers.IdentityOutcome{Verified: true, TrustScore: DefaultTrustScore, Method: "social_auth"}
	p, err := k.sign(r, now, proof.Claims{
		proof.ClaimVerified:   "true",
		proof.ClaimTrustScore: strconv.FormatFloat(DefaultTrustScore, 'f', 2, 64),
		proof.ClaimMethod:     "social_auth",
	})
	if err != nil {
		return nil, err
	}
	res.Passed, res.Proof = true, p
	return res, nil
}

// Calendar reports whether a property is blocked for a stay.
type Calendar interface {
	Blocked(ctx context.Context, property id.PropertyID, checkIn, checkOut time.Time) (bool, error)
}

// Availability consults an optional external calendar; without one every
// stay is available.
type Availability struct {
	base
	calendar Calendar
}

func NewAvailability(providerID string, signer proof.Signer, calendar Calendar, opts ...Option) *Availability {
	return &Availability{base: newBase(providerID, proof.KindAvailability, signer, opts), calendar: calendar}
}

func (k *Availability) Capabilities() providers.Capabilities {
	return k.capabilities(proof.ClaimAvailable)
}

func (k *Availability) Verify(ctx context.Context, req providers.Request) (*providers.Result, error) {
	r, ok := req.(providers.AvailabilityRequest)
	if !ok {
		return nil, providers.WrongRequest(k.id, req)
	}
	if k.calendar != nil {
		blocked, err := k.calendar.Blocked(ctx, r.Subject.PropertyID, r.Subject.CheckIn, r.Subject.CheckOut)
		if err != nil {
			return nil, providers.NewProviderError(providers.ErrorProviderOutage, k.id, "calendar lookup", err)
		}
		if blocked {
			res := k.result(k.now())
			res.Availability = &providers.AvailabilityOutcome{Available: false}
			return res, nil
		}
	}
	now := k.now()
	p, err := k.sign(r, now, proof.Claims{proof.ClaimAvailable: "true"})
	if err != nil {
		return nil, err
	}
	res := k.result(now)
	res.Passed, res.Proof = true, p
	res.Availability = &providers.AvailabilityOutcome{Available: true}
	return res, nil
}

// Escrow authorizes deposits up to maxAmount; zero means no ceiling.
type Escrow struct {
	base
	maxAmount int64
}

func NewEscrow(providerID string, signer proof.Signer, maxAmount int64, opts ...Option) *Escrow {
	return &Escrow{base: newBase(providerID, proof.KindEscrow, signer, opts), maxAmount: maxAmount}
}

func (k *Escrow) Capabilities() providers.Capabilities {
	return k.capabilities(proof.ClaimAuthorized, proof.ClaimAmount)
}

func (k *Escrow) Verify(ctx context.Context, req providers.Request) (*providers.Result, error) {
	r, ok := req.(providers.EscrowRequest)
	if !ok {
		return nil, providers.WrongRequest(k.id, req)
	}
	now := k.now()
	res := k.result(now)
	if r.Amount < 0 || (k.maxAmount > 0 && r.Amount > k.maxAmount) {
		res.Escrow = &providers.EscrowOutcome{Authorized: false, Amount: r.Amount}
		return res, nil
	}
	p, err := k.sign(r, now, proof.Claims{
		proof.ClaimAuthorized: "true",
		proof.ClaimAmount:     strconv.FormatInt(r.Amount, 10),
	})
	if err != nil {
		return nil, err
	}
	res.Passed, res.Proof = true, p
	res.Escrow = &providers.EscrowOutcome{Authorized: true, Amount: r.Amount}
	return res, nil
}

// Judge decides a dispute.
type Judge func(ctx context.Context, req providers.ResolutionRequest) (providers.ResolutionOutcome, error)

// RefundTenant is the default judge: full refund to the tenant.
func RefundTenant(_ context.Context, req providers.ResolutionRequest) (providers.ResolutionOutcome, error) {
	return providers.ResolutionOutcome{
		Outcome:      proof.OutcomeTenantFavorable,
		RefundAmount: req.Subject.Deposit,
		Reasoning:    "no evidence of damage; deposit returned",
	}, nil
}

type Resolution struct {
	base
	judge Judge
}

func NewResolution(providerID string, signer proof.Signer, judge Judge, opts ...Option) *Resolution {
	if judge == nil {
		judge = RefundTenant
	}
	return &Resolution{base: newBase(providerID, proof.KindResolution, signer, opts), judge: judge}
}

func (k *Resolution) Capabilities() providers.Capabilities {
	return k.capabilities(proof.ClaimOutcome, proof.ClaimRefundAmount, proof.ClaimDisputeID)
}

func (k *Resolution) Verify(ctx context.Context, req providers.Request) (*providers.Result, error) {
	r, ok := req.(providers.ResolutionRequest)
	if !ok {
		return nil, providers.WrongRequest(k.id, req)
	}
	verdict, err := k.judge(ctx, r)
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorInternal, k.id, "judge dispute", err)
	}
	now := k.now()
	p, err := k.sign(r, now, proof.Claims{
		proof.ClaimOutcome:      string(verdict.Outcome),
		proof.ClaimRefundAmount: strconv.FormatInt(verdict.RefundAmount, 10),
		proof.ClaimDisputeID:    r.DisputeID,
	})
	if err != nil {
		return nil, err
	}
	res := k.result(now)
	res.Passed, res.Proof = true, p
	res.Resolution = &verdict
	return res, nil
}
