package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentguard/pkg/platform/sentinel"
)

func rpcServer(t *testing.T, handle func(req rpcRequest) (int, rpcResponse)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		status, resp := handle(req)
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRPCBackendLockDeposit(t *testing.T) {
	var got rpcRequest
	srv := rpcServer(t, func(req rpcRequest) (int, rpcResponse) {
		got = req
		result, _ := json.Marshal(commitResult{Reference: "0xabc", CommittedAt: 1767225600})
		return http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
	})
	b := NewRPCBackend(srv.URL, time.Second, WithRPCAuthToken("secret"))

	r, err := b.LockDeposit(context.Background(), LockIntent(12, 900), "booking:12:lock_deposit")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", r.Reference)
	assert.Equal(t, int64(900), r.Amount)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), r.CommittedAt)

	assert.Equal(t, "escrow_lockDeposit", got.Method)
	require.Len(t, got.Params, 1)
	params := got.Params[0].(map[string]any)
	assert.Equal(t, "12", params["bookingId"])
	assert.Equal(t, "booking:12:lock_deposit", params["idempotencyKey"])
}

func TestRPCBackendErrors(t *testing.T) {
	t.Run("server error is unavailable", func(t *testing.T) {
		srv := rpcServer(t, func(req rpcRequest) (int, rpcResponse) {
			return http.StatusBadGateway, rpcResponse{}
		})
		_, err := NewRPCBackend(srv.URL, time.Second, WithRPCAuthToken("secret")).
			Settle(context.Background(), SettleIntent(1, Split{HostPayout: 1}), "k")
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("conflict code maps to idempotency mismatch", func(t *testing.T) {
		srv := rpcServer(t, func(req rpcRequest) (int, rpcResponse) {
			return http.StatusOK, rpcResponse{ID: req.ID, Error: &rpcError{Code: rpcCodeConflict, Message: "key reused"}}
		})
		_, err := NewRPCBackend(srv.URL, time.Second, WithRPCAuthToken("secret")).
			Settle(context.Background(), SettleIntent(1, Split{HostPayout: 1}), "k")
		assert.ErrorIs(t, err, ErrIdempotencyMismatch)
	})

	t.Run("rpc error object is a rejection", func(t *testing.T) {
		srv := rpcServer(t, func(req rpcRequest) (int, rpcResponse) {
			return http.StatusOK, rpcResponse{ID: req.ID, Error: &rpcError{Code: -32000, Message: "insufficient funds"}}
		})
		_, err := NewRPCBackend(srv.URL, time.Second, WithRPCAuthToken("secret")).
			LockDeposit(context.Background(), LockIntent(1, 1), "k")
		assert.ErrorIs(t, err, ErrRejected)
		assert.True(t, Definite(err))
	})

	t.Run("unreachable node is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		_, err := NewRPCBackend(url, time.Second).LockDeposit(context.Background(), LockIntent(1, 1), "k")
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("empty reference is rejected", func(t *testing.T) {
		srv := rpcServer(t, func(req rpcRequest) (int, rpcResponse) {
			return http.StatusOK, rpcResponse{ID: req.ID, Result: json.RawMessage(`{}`)}
		})
		_, err := NewRPCBackend(srv.URL, time.Second, WithRPCAuthToken("secret")).
			LockDeposit(context.Background(), LockIntent(1, 1), "k")
		assert.Error(t, err)
	})
}
