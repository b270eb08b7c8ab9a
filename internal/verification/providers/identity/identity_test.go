package identity

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentguard/internal/proof"
	"rentguard/internal/verification/providers"
	"rentguard/internal/verification/providers/contract"
	"rentguard/internal/verification/providers/node"
)

func subject() proof.Subject {
	return proof.Subject{
		BookingID:  9,
		TenantID:   "tenant-1",
		PropertyID: "P1",
		CheckIn:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		CheckOut:   time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
		Deposit:    25_000,
	}
}

// fakeNode answers like a verification node, signing whatever subject hash
// it is asked to attest unless tamper is set.
func fakeNode(t *testing.T, signer proof.Signer, verified bool, tamper bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var in request
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		hash, err := proof.ParseHash(in.SubjectHash)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if tamper {
			hash[0] ^= 0xff
		}
		out := response{Verified: verified, TrustScore: 0.9, Method: "document"}
		if verified {
			p, err := proof.Issue(signer, proof.Draft{Kind: proof.KindIdentity, Subject: hash, IssuedAt: time.Now(),
				Claims: proof.Claims{proof.ClaimVerified: "true", proof.ClaimTrustScore: "0.90", proof.ClaimMethod: "document"}})
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			dto := node.FromProof(p)
			out.Proof = &dto
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
}

func newProvider(t *testing.T, url string) *Provider {
	t.Helper()
	client, err := node.New(node.Config{BaseURL: url, JWTSecret: "s"})
	require.NoError(t, err)
	return New("identity-node", client)
}

func TestIdentityProviderContract(t *testing.T) {
	signer, err := proof.GenerateSecp256k1Signer()
	require.NoError(t, err)
	keyring := proof.NewKeyring()
	require.NoError(t, keyring.TrustSigner(signer))

	t.Run("verified tenant", func(t *testing.T) {
		srv := fakeNode(t, signer, true, false)
		defer srv.Close()
		p := newProvider(t, srv.URL)

		(&contract.CapabilityTest{Provider: p}).Run(t)
		(&contract.ContractSuite{
			Provider: p,
			Verifier: keyring,
			Tests: []contract.ContractTest{{
				Name:       "returns signed identity proof",
				Request:    providers.IdentityRequest{Subject: subject(), SubjectID: "tenant-1"},
				WantPassed: true,
			}},
		}).Run(t)
	})

	t.Run("unverified tenant carries no proof", func(t *testing.T) {
		srv := fakeNode(t, signer, false, false)
		defer srv.Close()
		(&contract.ContractSuite{
			Provider: newProvider(t, srv.URL),
			Verifier: keyring,
			Tests: []contract.ContractTest{{
				Name:       "negative answer",
				Request:    providers.IdentityRequest{Subject: subject(), SubjectID: "tenant-1"},
				WantPassed: false,
			}},
		}).Run(t)
	})

	t.Run("proof for a different subject is a contract mismatch", func(t *testing.T) {
		srv := fakeNode(t, signer, true, true)
		defer srv.Close()
		(&contract.ErrorContractTest{
			Provider:      newProvider(t, srv.URL),
			Request:       providers.IdentityRequest{Subject: subject(), SubjectID: "tenant-1"},
			ExpectedError: providers.ErrorContractMismatch,
		}).Run(t)
	})
}

func TestIdentityResponseParser(t *testing.T) {
	req := providers.IdentityRequest{Subject: subject(), SubjectID: "tenant-1"}

	t.Run("rejects trust score out of range", func(t *testing.T) {
		_, err := parseIdentityResponse("p", req, response{Verified: true, TrustScore: 1.5}, time.Now())
		require.Error(t, err)
		assert.Equal(t, providers.ErrorBadData, providers.GetCategory(err))
	})

	t.Run("verified without proof is bad data", func(t *testing.T) {
		_, err := parseIdentityResponse("p", req, response{Verified: true, TrustScore: 0.5}, time.Now())
		assert.Equal(t, providers.ErrorBadData, providers.GetCategory(err))
	})
}
