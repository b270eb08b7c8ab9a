package availability

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
	"rentguard/internal/verification/providers/node"
)

func TestAvailabilityProviderSendsStay(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(response{Available: false})
	}))
	defer srv.Close()

	client, err := node.New(node.Config{BaseURL: srv.URL, JWTSecret: "s"})
	require.NoError(t, err)
	p := New("availability-node", client)

	subject := proof.Subject{
		BookingID:  5,
		TenantID:   "t",
		PropertyID: "P1",
		CheckIn:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		CheckOut:   time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
	}
	res, err := p.Verify(t.Context(), providers.AvailabilityRequest{Subject: subject})
	require.NoError(t, err)

	assert.False(t, res.Passed, "unavailable is a true negative, not a fault")
	assert.Equal(t, "P1", got.PropertyID)
	assert.True(t, subject.CheckIn.Equal(got.CheckIn))
	assert.Equal(t, subject.Hash(proof.KindAvailability).Hex(), got.SubjectHash)

	// the node recomputes the commitment from the wire subject
	decoded, err := got.Subject.ToSubject()
	require.NoError(t, err)
	assert.Equal(t, subject.Hash(proof.KindAvailability), decoded.Hash(proof.KindAvailability))
}
