//go:generate mockgen -source=provider.go -destination=mocks/mocks.go -package=mocks Provider

package providers

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"rentguard/internal/proof"
)

// Protocol identifies how a provider reaches its verification backend.
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolLocal Protocol = "local"
)

// Capabilities describes what a provider supports.
type Capabilities struct {
	Protocol Protocol
	Kind     proof.Kind
	Version  string
	// Claims lists the signed claim keys the provider's proofs carry.
	Claims []string
}

// Provider is the capability every verification backend implements. The
// booking lifecycle depends on this interface only.
type Provider interface {
	ID() string
	Kind() proof.Kind
	Capabilities() Capabilities

	// Verify checks req. A negative answer ("not available", "not authorized")
	// is a Result with Passed=false, not an error.
	Verify(ctx context.Context, req Request) (*Result, error)

	Health(ctx context.Context) error
}

// Request is a typed verification request.
type Request interface {
	Kind() proof.Kind
	// SubjectHash is the commitment the issued proof must carry.
	SubjectHash() proof.Hash
}

// IdentityRequest asks whether the tenant behind a booking is who they claim.
type IdentityRequest struct {
	Subject   proof.Subject
	SubjectID string
}

func (IdentityRequest) Kind() proof.Kind { return proof.KindIdentity }

func (r IdentityRequest) SubjectHash() proof.Hash { return r.Subject.Hash(proof.KindIdentity) }

// AvailabilityRequest asks whether the property is free for the stay.
type AvailabilityRequest struct {
	Subject proof.Subject
}

func (AvailabilityRequest) Kind() proof.Kind { return proof.KindAvailability }

func (r AvailabilityRequest) SubjectHash() proof.Hash { return r.Subject.Hash(proof.KindAvailability) }

// EscrowRequest asks for authorization to hold Amount against the booking.
type EscrowRequest struct {
	Subject proof.Subject
	Amount  int64
}

func (EscrowRequest) Kind() proof.Kind { return proof.KindEscrow }

func (r EscrowRequest) SubjectHash() proof.Hash { return r.Subject.Hash(proof.KindEscrow) }

// ResolutionRequest asks for a verdict on a raised dispute.
type ResolutionRequest struct {
	Subject   proof.Subject
	DisputeID string
	Evidence  []string
}

func (ResolutionRequest) Kind() proof.Kind { return proof.KindResolution }

func (r ResolutionRequest) SubjectHash() proof.Hash { return r.Subject.Hash(proof.KindResolution) }

type IdentityOutcome struct {
	Verified   bool
	TrustScore float64
	Method     string
}

type AvailabilityOutcome struct {
	Available bool
}

type EscrowOutcome struct {
	Authorized bool
	Amount     int64
}

type ResolutionOutcome struct {
	Outcome      proof.Outcome
	RefundAmount int64
	Reasoning    string
}

// Result is the ephemeral answer of a provider. Exactly one outcome pointer
// matching Kind is set. Proof is set whenever Passed is true.
type Result struct {
	Kind       proof.Kind
	ProviderID string
	Passed     bool
	Degraded   bool
	CheckedAt  time.Time

	Identity     *IdentityOutcome
	Availability *AvailabilityOutcome
	Escrow       *EscrowOutcome
	Resolution   *ResolutionOutcome

	Proof *proof.Proof
}

// CheckResult enforces the Result shape for kind.
func CheckResult(kind proof.Kind, res *Result) error {
	if res == nil {
		return fmt.Errorf("nil result")
	}
	if res.Kind != kind {
		return fmt.Errorf("result kind %s, want %s", res.Kind, kind)
	}
	var outcomeSet bool
	switch kind {
	case proof.KindIdentity:
		outcomeSet = res.Identity != nil
	case proof.KindAvailability:
		outcomeSet = res.Availability != nil
	case proof.KindEscrow:
		outcomeSet = res.Escrow != nil
	case proof.KindResolution:
		outcomeSet = res.Resolution != nil
	}
	if !outcomeSet {
		return fmt.Errorf("%s result missing outcome", kind)
	}
	if res.Passed && res.Proof == nil {
		return fmt.Errorf("passing %s result missing proof", kind)
	}
	if res.Proof != nil && res.Proof.Kind != kind {
		return fmt.Errorf("result carries %s proof, want %s", res.Proof.Kind, kind)
	}
	return nil
}

// ProviderRegistry holds providers by id.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]Provider)}
}

func (r *ProviderRegistry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.ID()]; exists {
		return fmt.Errorf("provider %s already registered", p.ID())
	}
	r.providers[p.ID()] = p
	return nil
}

// ForKind returns the providers of kind, ordered by id.
func (r *ProviderRegistry) ForKind(kind proof.Kind) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Provider
	for _, p := range r.providers {
		if p.Kind() == kind {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b Provider) int { return strings.Compare(a.ID(), b.ID()) })
	return out
}
