package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"rentguard/pkg/platform/sentinel"
)

// DefaultRPCTimeout bounds one JSON-RPC round trip.
const DefaultRPCTimeout = 10 * time.Second

// rpcCodeConflict is returned by the escrow node when a key is reused with
// a different payload.
const rpcCodeConflict = -32009

// RPCBackend commits intents through the escrow node's JSON-RPC API.
type RPCBackend struct {
	url       string
	authToken string
	http      *http.Client
	nextID    atomic.Int64
}

type RPCOption func(*RPCBackend)

func WithRPCHTTPClient(c *http.Client) RPCOption {
	return func(b *RPCBackend) {
		if c != nil {
			b.http = c
		}
	}
}

func WithRPCAuthToken(token string) RPCOption {
	return func(b *RPCBackend) { b.authToken = strings.TrimSpace(token) }
}

func NewRPCBackend(url string, timeout time.Duration, opts ...RPCOption) *RPCBackend {
	if timeout <= 0 {
		timeout = DefaultRPCTimeout
	}
	b := &RPCBackend{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int64  `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type commitParams struct {
	BookingID      string `json:"bookingId"`
	Amount         int64  `json:"amount"`
	TenantRefund   int64  `json:"tenantRefund,omitempty"`
	HostPayout     int64  `json:"hostPayout,omitempty"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type commitResult struct {
	Reference   string `json:"reference"`
	CommittedAt int64  `json:"committedAt"`
}

func (b *RPCBackend) LockDeposit(ctx context.Context, intent Intent, key string) (*Receipt, error) {
	return b.commit(ctx, "escrow_lockDeposit", intent, key)
}

func (b *RPCBackend) Settle(ctx context.Context, intent Intent, key string) (*Receipt, error) {
	return b.commit(ctx, "escrow_settle", intent, key)
}

func (b *RPCBackend) commit(ctx context.Context, method string, intent Intent, key string) (*Receipt, error) {
	params := commitParams{
		BookingID:      intent.BookingID.String(),
		Amount:         intent.Amount,
		TenantRefund:   intent.Split.TenantRefund,
		HostPayout:     intent.Split.HostPayout,
		IdempotencyKey: key,
	}
	var res commitResult
	if err := b.call(ctx, method, params, &res); err != nil {
		return nil, err
	}
	if res.Reference == "" {
		return nil, fmt.Errorf("ledger rpc %s: empty reference", method)
	}
	return &Receipt{
		Reference:   res.Reference,
		Amount:      intent.Amount,
		Split:       intent.Split,
		CommittedAt: time.Unix(res.CommittedAt, 0).UTC(),
	}, nil
}

// Ping reports whether the node answers.
func (b *RPCBackend) Ping(ctx context.Context) error {
	return b.call(ctx, "net_version", nil, nil)
}

func (b *RPCBackend) call(ctx context.Context, method string, params any, out any) error {
	body := rpcRequest{JSONRPC: "2.0", Method: method, ID: b.nextID.Add(1)}
	if params != nil {
		body.Params = []any{params}
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.authToken)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return classifyTransport(method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("ledger rpc %s: status %d: %w", method, resp.StatusCode, sentinel.ErrUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("ledger rpc %s failed: status=%d body=%s: %w", method, resp.StatusCode, string(raw), ErrRejected)
	}
	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("ledger rpc %s: decode: %w", method, err)
	}
	if rpcResp.Error != nil {
		if rpcResp.Error.Code == rpcCodeConflict {
			return fmt.Errorf("ledger rpc %s: %s: %w", method, rpcResp.Error.Message, ErrIdempotencyMismatch)
		}
		return fmt.Errorf("ledger rpc %s error %d: %s: %w", method, rpcResp.Error.Code, rpcResp.Error.Message, ErrRejected)
	}
	if out == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

func classifyTransport(method string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("ledger rpc %s timed out: %w: %w", method, sentinel.ErrUnavailable, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("ledger rpc %s: %w: %w", method, sentinel.ErrUnavailable, err)
}
