package proof

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "rentguard/pkg/domain"
)

var issuedAt = time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)

func testSubject() Subject {
	return Subject{
		BookingID:  7,
		TenantID:   id.TenantID("tenant-1"),
		PropertyID: id.PropertyID("P1"),
		CheckIn:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		CheckOut:   time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
		Deposit:    50_000,
	}
}

type ValidateSuite struct {
	suite.Suite
	signer  *Secp256k1Signer
	keyring *Keyring
}

func TestValidateSuite(t *testing.T) {
	suite.Run(t, new(ValidateSuite))
}

func (s *ValidateSuite) SetupTest() {
	var err error
	s.signer, err = GenerateSecp256k1Signer()
	s.Require().NoError(err)
	s.keyring = NewKeyring()
	s.Require().NoError(s.keyring.TrustSigner(s.signer))
}

func (s *ValidateSuite) issue(kind Kind, subject Hash) *Proof {
	p, err := Issue(s.signer, Draft{Kind: kind, Subject: subject, IssuedAt: issuedAt})
	s.Require().NoError(err)
	return p
}

func (s *ValidateSuite) expect(kind Kind) Expectation {
	return Expectation{Kind: kind, Subject: testSubject().Hash(kind), Now: issuedAt.Add(time.Minute)}
}

func (s *ValidateSuite) TestAcceptsMatchingProof() {
	p := s.issue(KindIdentity, testSubject().Hash(KindIdentity))
	s.Require().NoError(Validate(p, s.expect(KindIdentity), s.keyring))
	s.Equal(issuedAt.Add(24*time.Hour), p.ValidUntil)
}

func (s *ValidateSuite) TestRejectsWrongKind() {
	p := s.issue(KindIdentity, testSubject().Hash(KindIdentity))
	s.Require().ErrorIs(Validate(p, s.expect(KindEscrow), s.keyring), ErrKindMismatch)
}

func (s *ValidateSuite) TestRejectsExpired() {
	p := s.issue(KindAvailability, testSubject().Hash(KindAvailability))
	want := s.expect(KindAvailability)
	want.Now = issuedAt.Add(time.Hour + time.Second)
	s.Require().ErrorIs(Validate(p, want, s.keyring), ErrExpired)
}

func (s *ValidateSuite) TestAcceptsAtExactExpiry() {
	p := s.issue(KindAvailability, testSubject().Hash(KindAvailability))
	want := s.expect(KindAvailability)
	want.Now = p.ValidUntil
	s.Require().NoError(Validate(p, want, s.keyring))
}

func (s *ValidateSuite) TestRejectsFutureIssuedAt() {
	p := s.issue(KindIdentity, testSubject().Hash(KindIdentity))
	want := s.expect(KindIdentity)
	want.Now = issuedAt.Add(-time.Hour)
	s.Require().ErrorIs(Validate(p, want, s.keyring), ErrNotYetValid)
}

func (s *ValidateSuite) TestSubjectBindingBeatsValidSignature() {
	other := testSubject()
	other.Deposit++
	p := s.issue(KindEscrow, other.Hash(KindEscrow))
	s.Require().NoError(s.keyring.Verify(p.Issuer, p.Digest(), p.Signature))
	s.Require().ErrorIs(Validate(p, s.expect(KindEscrow), s.keyring), ErrSubjectMismatch)
}

func (s *ValidateSuite) TestRejectsTamperedClaims() {
	p, err := Issue(s.signer, Draft{
		Kind:     KindResolution,
		Subject:  testSubject().Hash(KindResolution),
		IssuedAt: issuedAt,
		Claims:   Claims{ClaimOutcome: string(OutcomePartial), ClaimRefundAmount: "100"},
	})
	s.Require().NoError(err)
	p.Claims[ClaimRefundAmount] = "50000"
	s.Require().ErrorIs(Validate(p, s.expect(KindResolution), s.keyring), ErrBadSignature)
}

func (s *ValidateSuite) TestRejectsUntrustedIssuer() {
	stranger, err := GenerateSecp256k1Signer()
	s.Require().NoError(err)
	p, err := Issue(stranger, Draft{Kind: KindIdentity, Subject: testSubject().Hash(KindIdentity), IssuedAt: issuedAt})
	s.Require().NoError(err)
	s.Require().ErrorIs(Validate(p, s.expect(KindIdentity), s.keyring), ErrUntrustedIssuer)
}

func (s *ValidateSuite) TestDegradedFollowsPolicy() {
	fallback, err := DeriveEd25519Signer([]byte("0123456789abcdef0123"), "availability")
	s.Require().NoError(err)
	s.Require().NoError(s.keyring.TrustSigner(fallback))

	p, err := Issue(fallback, Draft{
		Kind:     KindAvailability,
		Subject:  testSubject().Hash(KindAvailability),
		IssuedAt: issuedAt,
		Degraded: true,
	})
	s.Require().NoError(err)

	want := s.expect(KindAvailability)
	s.Require().ErrorIs(Validate(p, want, s.keyring), ErrDegradedNotAllowed)

	want.AllowDegraded = true
	s.Require().NoError(Validate(p, want, s.keyring))
}

func TestSubjectHash_SeparatesKindsAndFields(t *testing.T) {
	base := testSubject()
	assert.NotEqual(t, base.Hash(KindIdentity), base.Hash(KindAvailability))

	moved := base
	moved.CheckOut = moved.CheckOut.Add(24 * time.Hour)
	assert.NotEqual(t, base.Hash(KindAvailability), moved.Hash(KindAvailability))

	advanced := base
	advanced.ChainHead = Hash{1}
	assert.NotEqual(t, base.Hash(KindEscrow), advanced.Hash(KindEscrow))

	local := base
	local.CheckIn = local.CheckIn.In(time.FixedZone("UTC+2", 2*60*60))
	assert.Equal(t, base.Hash(KindIdentity), local.Hash(KindIdentity), "zone must not change the commitment")
}

func TestDeriveEd25519Signer_Deterministic(t *testing.T) {
	seed := []byte("fallback-seed-for-tests")
	a, err := DeriveEd25519Signer(seed, "identity")
	require.NoError(t, err)
	b, err := DeriveEd25519Signer(seed, "identity")
	require.NoError(t, err)
	c, err := DeriveEd25519Signer(seed, "escrow")
	require.NoError(t, err)

	assert.Equal(t, a.Issuer(), b.Issuer())
	assert.NotEqual(t, a.Issuer(), c.Issuer())

	_, err = DeriveEd25519Signer([]byte("short"), "identity")
	assert.Error(t, err)
}

func TestProofJSONRoundTripKeepsDigest(t *testing.T) {
	signer, err := GenerateSecp256k1Signer()
	require.NoError(t, err)
	p, err := Issue(signer, Draft{
		Kind:     KindIdentity,
		Subject:  testSubject().Hash(KindIdentity),
		IssuedAt: issuedAt.Add(123 * time.Nanosecond),
		Claims:   Claims{ClaimVerified: "true", ClaimTrustScore: "0.85"},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	var decoded Proof
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, p.Digest(), decoded.Digest())
	assert.Contains(t, string(raw), p.SubjectHash.Hex())
}
