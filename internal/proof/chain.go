package proof

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// Genesis is the verification hash of a booking with no proofs.
var Genesis Hash

// Link extends the chain: next = keccak256(prev || digest(p) || signature(p)).
func Link(prev Hash, p *Proof) Hash {
	d := p.Digest()
	return Hash(crypto.Keccak256Hash(prev[:], d[:], p.Signature))
}

// Head folds proofs from Genesis.
func Head(proofs []*Proof) Hash {
	h := Genesis
	for _, p := range proofs {
		h = Link(h, p)
	}
	return h
}

// VerifyChain checks every signature (when v is non-nil) and that the
// recomputed chain ends at head.
func VerifyChain(proofs []*Proof, head Hash, v Verifier) error {
	h := Genesis
	for i, p := range proofs {
		if p == nil {
			return fmt.Errorf("%w: proof %d missing", ErrBrokenChain, i)
		}
		if v != nil {
			if err := v.Verify(p.Issuer, p.Digest(), p.Signature); err != nil {
				return fmt.Errorf("proof %d (%s): %w", i, p.Kind, err)
			}
		}
		h = Link(h, p)
	}
	if h != head {
		return fmt.Errorf("%w: recomputed %s, recorded %s", ErrBrokenChain, h, head)
	}
	return nil
}
