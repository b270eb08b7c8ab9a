// Package node is the HTTP transport to a remote verification node. Every
// call is authenticated with a short-lived HS256 bearer token and passes
// through a per-node rate limiter.
package node

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
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"rentguard/internal/verification/providers"
)

const (
	maxResponseBytes = 1 << 20
	tokenTTL         = time.Minute
	tokenIssuer      = "rentguard"
)

type Config struct {
	BaseURL   string
	JWTSecret string
	// Audience is the node's expected aud claim.
	Audience string
	// RatePerSecond <= 0 disables limiting.
	RatePerSecond float64
	Burst         int
}

type Client struct {
	baseURL  string
	secret   []byte
	audience string
	http     *http.Client
	limiter  *rate.Limiter
	now      func() time.Time
}

type Option func(*Client)

// WithHTTPClient replaces the transport. Per-call deadlines come from the
// caller's context, so the client itself carries no timeout by default.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(cl *Client) {
		if now != nil {
			cl.now = now
		}
	}
}

func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("verification node url is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("verification node secret is required")
	}
	c := &Client{
		baseURL:  base,
		secret:   []byte(cfg.JWTSecret),
		audience: cfg.Audience,
		http:     &http.Client{},
		now:      time.Now,
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Post sends in as JSON to path and decodes the 2xx response into out.
// Failures come back as *providers.ProviderError attributed to providerID.
func (c *Client) Post(ctx context.Context, providerID, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return providers.NewProviderError(providers.ErrorInternal, providerID, "encode request", err)
	}
	return c.do(ctx, providerID, http.MethodPost, path, bytes.NewReader(body), out)
}

// Ping calls the node's status endpoint.
func (c *Client) Ping(ctx context.Context, providerID string) error {
	var status struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, providerID, http.MethodGet, "/status", nil, &status); err != nil {
		return err
	}
	if status.Status != "" && status.Status != "ok" && status.Status != "operational" {
		return providers.NewProviderError(providers.ErrorProviderOutage, providerID, "node reports "+status.Status, nil)
	}
	return nil
}

func (c *Client) do(ctx context.Context, providerID, method, path string, body io.Reader, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return providers.NewProviderError(providers.ErrorRateLimited, providerID, "local rate limit", err)
		}
	}

	token, err := c.token(providerID)
	if err != nil {
		return providers.NewProviderError(providers.ErrorAuthentication, providerID, "sign node token", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return providers.NewProviderError(providers.ErrorInternal, providerID, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(ctx, providerID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return classifyTransportError(ctx, providerID, err)
	}
	if err := classifyStatus(providerID, resp.StatusCode, raw); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return providers.NewProviderError(providers.ErrorBadData, providerID, "decode response", err)
	}
	return nil
}

func (c *Client) token(providerID string) (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   providerID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	if c.audience != "" {
		claims.Audience = jwt.ClaimStrings{c.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func classifyTransportError(ctx context.Context, providerID string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return providers.NewProviderError(providers.ErrorTimeout, providerID, "node call timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return providers.NewProviderError(providers.ErrorTimeout, providerID, "node call timed out", err)
	}
	return providers.NewProviderError(providers.ErrorProviderOutage, providerID, "node unreachable", err)
}

func classifyStatus(providerID string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return providers.NewProviderError(providers.ErrorAuthentication, providerID, http.StatusText(status), nil)
	case status == http.StatusTooManyRequests:
		return providers.NewProviderError(providers.ErrorRateLimited, providerID, "node rate limited", nil)
	case status == http.StatusNotFound || status == http.StatusMethodNotAllowed:
		return providers.NewProviderError(providers.ErrorContractMismatch, providerID, "endpoint not served by node", nil)
	case status >= 500:
		return providers.NewProviderError(providers.ErrorProviderOutage, providerID,
			fmt.Sprintf("node returned %d", status), errors.New(snippet(body)))
	default:
		return providers.NewProviderError(providers.ErrorBadData, providerID,
			fmt.Sprintf("node rejected request with %d", status), errors.New(snippet(body)))
	}
}

func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
