package proof

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"
)

// Signer produces signatures over proof digests. The scheme is pluggable;
// Issuer identifies the key so a Verifier can select it.
type Signer interface {
	Issuer() string
	Sign(digest Hash) ([]byte, error)
}

// Verifier checks a signature made by issuer over digest.
type Verifier interface {
	Verify(issuer string, digest Hash, sig []byte) error
}

// Draft is an unsigned proof.
type Draft struct {
	Kind     Kind
	Subject  Hash
	IssuedAt time.Time
	// ValidFor defaults to DefaultValidity(Kind).
	ValidFor time.Duration
	Claims   Claims
	Degraded bool
}

// Issue signs d with s.
func Issue(s Signer, d Draft) (*Proof, error) {
	if !d.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformed, d.Kind)
	}
	if d.IssuedAt.IsZero() {
		return nil, fmt.Errorf("%w: issued_at required", ErrMalformed)
	}
	validFor := d.ValidFor
	if validFor <= 0 {
		validFor = DefaultValidity(d.Kind)
	}
	p := &Proof{
		Kind:        d.Kind,
		SubjectHash: d.Subject,
		Issuer:      s.Issuer(),
		IssuedAt:    d.IssuedAt.UTC(),
		ValidUntil:  d.IssuedAt.UTC().Add(validFor),
		Claims:      d.Claims.Clone(),
		Degraded:    d.Degraded,
	}
	sig, err := s.Sign(p.Digest())
	if err != nil {
		return nil, fmt.Errorf("sign %s proof: %w", d.Kind, err)
	}
	p.Signature = sig
	return p, nil
}

// Secp256k1Signer signs with an Ethereum-style key; the issuer is the
// checksummed address of the key.
type Secp256k1Signer struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func NewSecp256k1Signer(key *ecdsa.PrivateKey) *Secp256k1Signer {
	return &Secp256k1Signer{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

// Secp256k1SignerFromHex parses a hex private key (with or without 0x).
func Secp256k1SignerFromHex(s string) (*Secp256k1Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return NewSecp256k1Signer(key), nil
}

// GenerateSecp256k1Signer creates a signer with a fresh random key.
func GenerateSecp256k1Signer() (*Secp256k1Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewSecp256k1Signer(key), nil
}

func (s *Secp256k1Signer) Issuer() string { return s.addr.Hex() }

func (s *Secp256k1Signer) Address() common.Address { return s.addr }

func (s *Secp256k1Signer) Sign(digest Hash) ([]byte, error) {
	return crypto.Sign(digest[:], s.key)
}

const ed25519IssuerPrefix = "ed25519:"

// Ed25519Signer signs gateway-issued fallback proofs.
type Ed25519Signer struct {
	key ed25519.PrivateKey
	pub ed25519.PublicKey
}

// DeriveEd25519Signer derives a deterministic key from seed, separated by label.
func DeriveEd25519Signer(seed []byte, label string) (*Ed25519Signer, error) {
	if len(seed) < 16 {
		return nil, fmt.Errorf("fallback seed must be at least 16 bytes")
	}
	r := hkdf.New(sha256.New, seed, nil, []byte("rentguard/fallback/"+label))
	keySeed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, keySeed); err != nil {
		return nil, fmt.Errorf("derive fallback key: %w", err)
	}
	key := ed25519.NewKeyFromSeed(keySeed)
	return &Ed25519Signer{key: key, pub: key.Public().(ed25519.PublicKey)}, nil
}

func (s *Ed25519Signer) Issuer() string {
	return ed25519IssuerPrefix + hex.EncodeToString(s.pub)
}

func (s *Ed25519Signer) PublicKey() ed25519.PublicKey { return s.pub }

func (s *Ed25519Signer) Sign(digest Hash) ([]byte, error) {
	return ed25519.Sign(s.key, digest[:]), nil
}

// Keyring is a Verifier over a set of trusted issuers.
type Keyring struct {
	mu      sync.RWMutex
	secp    map[common.Address]struct{}
	ed25519 map[string]ed25519.PublicKey
}

func NewKeyring() *Keyring {
	return &Keyring{
		secp:    make(map[common.Address]struct{}),
		ed25519: make(map[string]ed25519.PublicKey),
	}
}

// TrustAddress trusts a secp256k1 issuer by address.
func (k *Keyring) TrustAddress(addr string) error {
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("invalid issuer address %q", addr)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.secp[common.HexToAddress(addr)] = struct{}{}
	return nil
}

// TrustSigner trusts the public half of a local signer.
func (k *Keyring) TrustSigner(s Signer) error {
	switch signer := s.(type) {
	case *Secp256k1Signer:
		return k.TrustAddress(signer.Issuer())
	case *Ed25519Signer:
		k.mu.Lock()
		defer k.mu.Unlock()
		k.ed25519[signer.Issuer()] = signer.PublicKey()
		return nil
	default:
		return fmt.Errorf("unsupported signer %T", s)
	}
}

func (k *Keyring) Verify(issuer string, digest Hash, sig []byte) error {
	if strings.HasPrefix(issuer, ed25519IssuerPrefix) {
		k.mu.RLock()
		pub, ok := k.ed25519[issuer]
		k.mu.RUnlock()
		if !ok {
			return fmt.Errorf("%w: %s", ErrUntrustedIssuer, issuer)
		}
		if !ed25519.Verify(pub, digest[:], sig) {
			return ErrBadSignature
		}
		return nil
	}

	if !common.IsHexAddress(issuer) {
		return fmt.Errorf("%w: %s", ErrUntrustedIssuer, issuer)
	}
	addr := common.HexToAddress(issuer)
	k.mu.RLock()
	_, ok := k.secp[addr]
	k.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUntrustedIssuer, issuer)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: signature length %d", ErrBadSignature, len(sig))
	}
	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if crypto.PubkeyToAddress(*pub) != addr {
		return ErrBadSignature
	}
	return nil
}
