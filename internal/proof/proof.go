// Package proof models signed, time-bounded attestations that a verification
// check passed for specific booking data, and the hash chain that binds a
// booking's accepted proofs together.
package proof

import (
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// Kind names the verification capability that produced a proof.
type Kind string

const (
	KindIdentity     Kind = "identity"
	KindAvailability Kind = "availability"
	KindEscrow       Kind = "escrow"
	KindResolution   Kind = "resolution"
)

// Kinds lists every kind in lifecycle order.
var Kinds = []Kind{KindIdentity, KindAvailability, KindEscrow, KindResolution}

func (k Kind) Valid() bool {
	switch k {
	case KindIdentity, KindAvailability, KindEscrow, KindResolution:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown proof kind %q", s)
	}
	return k, nil
}

// DefaultValidity is how long a freshly issued proof of kind stays acceptable.
func DefaultValidity(k Kind) time.Duration {
	switch k {
	case KindIdentity:
		return 24 * time.Hour
	case KindAvailability:
		return time.Hour
	case KindEscrow:
		return 7 * 24 * time.Hour
	case KindResolution:
		return 30 * 24 * time.Hour
	}
	return 0
}

// Hash is a 32-byte commitment, rendered as 0x-prefixed hex.
type Hash [32]byte

func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func ParseHash(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return h, fmt.Errorf("decode hash: %w", err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("hash must be %d bytes, got %d", len(h), len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

// Proof is immutable once issued. Signature covers Digest(), which in turn
// covers every other field.
type Proof struct {
	Kind        Kind      `json:"kind"`
	SubjectHash Hash      `json:"subject_hash"`
	Issuer      string    `json:"issuer"`
	IssuedAt    time.Time `json:"issued_at"`
	ValidUntil  time.Time `json:"valid_until"`
	Claims      Claims    `json:"claims,omitempty"`
	Degraded    bool      `json:"degraded"`
	Signature   []byte    `json:"signature"`
}

// Digest is the keccak256 commitment that signers sign.
func (p *Proof) Digest() Hash {
	var e encoder
	e.str(digestDomain)
	e.str(string(p.Kind))
	e.bytes(p.SubjectHash[:])
	e.str(p.Issuer)
	e.time(p.IssuedAt)
	e.time(p.ValidUntil)
	e.bool(p.Degraded)
	e.claims(p.Claims)
	return Hash(crypto.Keccak256Hash(e.buf.Bytes()))
}

// Clone returns a deep copy.
func (p *Proof) Clone() *Proof {
	if p == nil {
		return nil
	}
	c := *p
	c.Claims = maps.Clone(p.Claims)
	c.Signature = append([]byte(nil), p.Signature...)
	return &c
}

// Claim returns a signed claim value.
func (p *Proof) Claim(key string) (string, bool) {
	v, ok := p.Claims[key]
	return v, ok
}

// ExpiredAt reports whether the proof is past its window at now.
func (p *Proof) ExpiredAt(now time.Time) bool { return now.After(p.ValidUntil) }

const digestDomain = "rentguard/proof/v1"

var (
	ErrMalformed          = errors.New("malformed proof")
	ErrKindMismatch       = errors.New("proof kind does not match transition")
	ErrSubjectMismatch    = errors.New("proof subject does not match booking data")
	ErrExpired            = errors.New("proof expired")
	ErrNotYetValid        = errors.New("proof issued in the future")
	ErrUntrustedIssuer    = errors.New("proof issuer is not trusted")
	ErrBadSignature       = errors.New("proof signature invalid")
	ErrDegradedNotAllowed = errors.New("degraded proof not accepted for this transition")
	ErrBrokenChain        = errors.New("verification chain mismatch")
)
