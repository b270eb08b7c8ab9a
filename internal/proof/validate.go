package proof

import (
	"fmt"
	"time"
)

// MaxClockSkew tolerates issuers whose clocks run slightly ahead.
const MaxClockSkew = 2 * time.Minute

// Expectation is what a transition requires of its proof.
type Expectation struct {
	Kind          Kind
	Subject       Hash
	Now           time.Time
	AllowDegraded bool
}

// Validate checks p against want. Checks run in a fixed order so the first
// failing property is the one reported.
func Validate(p *Proof, want Expectation, v Verifier) error {
	if p == nil {
		return fmt.Errorf("%w: nil proof", ErrMalformed)
	}
	if !p.Kind.Valid() || p.Issuer == "" || len(p.Signature) == 0 {
		return ErrMalformed
	}
	if p.Kind != want.Kind {
		return fmt.Errorf("%w: got %s, want %s", ErrKindMismatch, p.Kind, want.Kind)
	}
	if p.ExpiredAt(want.Now) {
		return fmt.Errorf("%w: valid until %s", ErrExpired, p.ValidUntil.Format(time.RFC3339))
	}
	if p.IssuedAt.After(want.Now.Add(MaxClockSkew)) {
		return ErrNotYetValid
	}
	if p.SubjectHash != want.Subject {
		return ErrSubjectMismatch
	}
	if err := v.Verify(p.Issuer, p.Digest(), p.Signature); err != nil {
		return err
	}
	if p.Degraded && !want.AllowDegraded {
		return ErrDegradedNotAllowed
	}
	return nil
}
