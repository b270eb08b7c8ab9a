package node

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"rentguard/internal/proof"
	"rentguard/internal/verification/providers"
	id "rentguard/pkg/domain"
)

// SubjectDTO is the wire form of proof.Subject.
type SubjectDTO struct {
	BookingID  uint64    `json:"booking_id"`
	TenantID   string    `json:"tenant_id"`
	PropertyID string    `json:"property_id"`
	CheckIn    time.Time `json:"check_in"`
	CheckOut   time.Time `json:"check_out"`
	Deposit    int64     `json:"deposit"`
	ChainHead  string    `json:"chain_head"`
}

func FromSubject(s proof.Subject) SubjectDTO {
	return SubjectDTO{
		BookingID:  uint64(s.BookingID),
		TenantID:   string(s.TenantID),
		PropertyID: string(s.PropertyID),
		CheckIn:    s.CheckIn.UTC(),
		CheckOut:   s.CheckOut.UTC(),
		Deposit:    s.Deposit,
		ChainHead:  s.ChainHead.Hex(),
	}
}

func (d SubjectDTO) ToSubject() (proof.Subject, error) {
	head, err := proof.ParseHash(d.ChainHead)
	if err != nil {
		return proof.Subject{}, fmt.Errorf("chain_head: %w", err)
	}
	return proof.Subject{
		BookingID:  id.BookingID(d.BookingID),
		TenantID:   id.TenantID(d.TenantID),
		PropertyID: id.PropertyID(d.PropertyID),
		CheckIn:    d.CheckIn,
		CheckOut:   d.CheckOut,
		Deposit:    d.Deposit,
		ChainHead:  head,
	}, nil
}

// ProofDTO is the wire form of a signed proof.
type ProofDTO struct {
	Kind        string            `json:"kind"`
	SubjectHash string            `json:"subject_hash"`
	Issuer      string            `json:"issuer"`
	IssuedAt    time.Time         `json:"issued_at"`
	ValidUntil  time.Time         `json:"valid_until"`
	Claims      map[string]string `json:"claims,omitempty"`
	Degraded    bool              `json:"degraded"`
	Signature   string            `json:"signature"`
}

func FromProof(p *proof.Proof) ProofDTO {
	return ProofDTO{
		Kind:        string(p.Kind),
		SubjectHash: p.SubjectHash.Hex(),
		Issuer:      p.Issuer,
		IssuedAt:    p.IssuedAt,
		ValidUntil:  p.ValidUntil,
		Claims:      p.Claims.Clone(),
		Degraded:    p.Degraded,
		Signature:   "0x" + hex.EncodeToString(p.Signature),
	}
}

func (d ProofDTO) ToProof() (*proof.Proof, error) {
	kind, err := proof.ParseKind(d.Kind)
	if err != nil {
		return nil, err
	}
	subject, err := proof.ParseHash(d.SubjectHash)
	if err != nil {
		return nil, fmt.Errorf("subject_hash: %w", err)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(d.Signature, "0x"))
	if err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}
	if d.Issuer == "" || len(sig) == 0 {
		return nil, fmt.Errorf("proof missing issuer or signature")
	}
	return &proof.Proof{
		Kind:        kind,
		SubjectHash: subject,
		Issuer:      d.Issuer,
		IssuedAt:    d.IssuedAt,
		ValidUntil:  d.ValidUntil,
		Claims:      proof.Claims(d.Claims).Clone(),
		Degraded:    d.Degraded,
		Signature:   sig,
	}, nil
}

// DecodeProof converts a node proof and checks it answers req. Any mismatch
// is a contract violation by the node.
func DecodeProof(providerID string, dto *ProofDTO, req providers.Request) (*proof.Proof, error) {
	if dto == nil {
		return nil, providers.NewProviderError(providers.ErrorBadData, providerID, "response missing proof", nil)
	}
	p, err := dto.ToProof()
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorBadData, providerID, "malformed proof", err)
	}
	if p.Kind != req.Kind() {
		return nil, providers.NewProviderError(providers.ErrorContractMismatch, providerID,
			fmt.Sprintf("node returned %s proof for %s request", p.Kind, req.Kind()), nil)
	}
	if p.SubjectHash != req.SubjectHash() {
		return nil, providers.NewProviderError(providers.ErrorContractMismatch, providerID, "proof subject does not match request", nil)
	}
	return p, nil
}
