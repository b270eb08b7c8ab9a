// Package gateway wraps verification providers with uniform network
// discipline: a bounded per-call timeout, at most one retry on transient
// failure, and a signed, flagged fallback result when the provider stays
// unreachable.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rentguard/internal/proof"
	"rentguard/internal/verification/metrics"
	"rentguard/internal/verification/providers"
	"rentguard/pkg/platform/circuit"
)

const (
	DefaultTimeout      = 8 * time.Second
	DefaultRetryBackoff = 200 * time.Millisecond

	maxAttempts = 2
	tracerName  = "rentguard/verification/gateway"
)

var errCircuitOpen = errors.New("circuit open")

type Gateway struct {
	provider providers.Provider
	fallback proof.Signer
	timeout  time.Duration
	backoff  time.Duration
	breaker  *circuit.Breaker
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

type Option func(*Gateway)

// WithTimeout bounds each provider attempt.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRetryBackoff sets the pause before the single retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(g *Gateway) {
		if d >= 0 {
			g.backoff = d
		}
	}
}

// WithBreaker short-circuits to the fallback while the breaker is open.
func WithBreaker(b *circuit.Breaker) Option {
	return func(g *Gateway) { g.breaker = b }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// New wraps p. A nil fallback signer disables degraded results: exhausted
// retries then surface as retryable provider errors.
func New(p providers.Provider, fallback proof.Signer, opts ...Option) *Gateway {
	g := &Gateway{
		provider: p,
		fallback: fallback,
		timeout:  DefaultTimeout,
		backoff:  DefaultRetryBackoff,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Kind() proof.Kind { return g.provider.Kind() }

func (g *Gateway) ProviderID() string { return g.provider.ID() }

func (g *Gateway) Provider() providers.Provider { return g.provider }

// BreakerOpen reports the breaker state; always false without a breaker.
func (g *Gateway) BreakerOpen() bool { return g.breaker != nil && g.breaker.IsOpen() }

// Verify runs req against the provider. A provider's negative answer is
// returned as-is. Cancellation of ctx is reported as a retryable timeout and
// never produces a fallback.
func (g *Gateway) Verify(ctx context.Context, req providers.Request) (*providers.Result, error) {
	kind := g.provider.Kind()
	if req == nil || req.Kind() != kind {
		return nil, providers.WrongRequest(g.provider.ID(), req)
	}

	ctx, span := g.tracer.Start(ctx, "gateway.Verify", trace.WithAttributes(
		attribute.String("proof.kind", string(kind)),
		attribute.String("provider.id", g.provider.ID()),
	))
	defer span.End()

	if g.breaker != nil && !g.breaker.Allow() {
		return g.degrade(ctx, span, req, errCircuitOpen)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := g.attempt(ctx, req)
		if err == nil {
			g.recordSuccess(ctx)
			outcome := metrics.OutcomeSuccess
			if !res.Passed {
				outcome = metrics.OutcomeRejected
			}
			g.metrics.IncCall(string(kind), outcome)
			span.SetAttributes(attribute.Bool("verification.passed", res.Passed), attribute.Int("attempts", attempt))
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			g.metrics.IncCall(string(kind), metrics.OutcomeError)
			span.RecordError(err)
			span.SetStatus(codes.Error, "caller context done")
			return nil, providers.NewProviderError(providers.ErrorTimeout, g.provider.ID(), "verification abandoned", ctx.Err())
		}
		if !providers.IsRetryable(err) {
			g.metrics.IncCall(string(kind), metrics.OutcomeError)
			span.RecordError(err)
			span.SetStatus(codes.Error, string(providers.GetCategory(err)))
			return nil, err
		}

		g.recordFailure(ctx)
		if attempt < maxAttempts {
			g.metrics.IncCall(string(kind), metrics.OutcomeRetry)
			g.logger.InfoContext(ctx, "retrying provider call",
				"kind", kind,
				"provider_id", g.provider.ID(),
				"error", err,
			)
			if err := sleep(ctx, g.backoff); err != nil {
				return nil, providers.NewProviderError(providers.ErrorTimeout, g.provider.ID(), "verification abandoned", err)
			}
		}
	}
	return g.degrade(ctx, span, req, lastErr)
}

type attemptResult struct {
	res *providers.Result
	err error
}

// attempt enforces the timeout even when the provider ignores its context.
func (g *Gateway) attempt(ctx context.Context, req providers.Request) (*providers.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan attemptResult, 1)
	go func() {
		res, err := g.provider.Verify(callCtx, req)
		done <- attemptResult{res: res, err: err}
	}()

	var out attemptResult
	select {
	case out = <-done:
	case <-callCtx.Done():
		out = attemptResult{err: callCtx.Err()}
	}
	g.metrics.ObserveLatency(string(g.provider.Kind()), time.Since(start))

	if out.err != nil {
		return nil, g.classify(out.err)
	}
	if err := providers.CheckResult(g.provider.Kind(), out.res); err != nil {
		return nil, providers.NewProviderError(providers.ErrorBadData, g.provider.ID(), "malformed result", err)
	}
	if out.res.Passed && out.res.Proof.SubjectHash != req.SubjectHash() {
		return nil, providers.NewProviderError(providers.ErrorContractMismatch, g.provider.ID(), "proof not bound to request", nil)
	}
	return out.res, nil
}

func (g *Gateway) classify(err error) error {
	var pe *providers.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return providers.NewProviderError(providers.ErrorTimeout, g.provider.ID(), "attempt timed out", err)
	}
	return providers.NewProviderError(providers.ErrorInternal, g.provider.ID(), "provider failed", err)
}

func (g *Gateway) degrade(ctx context.Context, span trace.Span, req providers.Request, cause error) (*providers.Result, error) {
	kind := g.provider.Kind()
	if g.fallback == nil {
		g.metrics.IncCall(string(kind), metrics.OutcomeError)
		span.RecordError(cause)
		span.SetStatus(codes.Error, "provider unreachable")
		if errors.Is(cause, errCircuitOpen) {
			return nil, providers.NewProviderError(providers.ErrorProviderOutage, g.provider.ID(), "circuit open", cause)
		}
		return nil, cause
	}

	res, err := Fallback(req, g.fallback, g.now(), g.provider.ID())
	if err != nil {
		span.RecordError(err)
		return nil, providers.NewProviderError(providers.ErrorInternal, g.provider.ID(), "issue fallback proof", err)
	}
	g.metrics.IncCall(string(kind), metrics.OutcomeFallback)
	g.logger.WarnContext(ctx, "provider unreachable, issuing degraded proof",
		"kind", kind,
		"provider_id", g.provider.ID(),
		"error", cause,
	)
	span.SetAttributes(attribute.Bool("proof.degraded", true))
	return res, nil
}

func (g *Gateway) recordFailure(ctx context.Context) {
	if g.breaker == nil {
		return
	}
	if _, change := g.breaker.RecordFailure(); change.Opened {
		g.metrics.SetBreakerOpen(string(g.provider.Kind()), true)
		g.logger.WarnContext(ctx, "provider circuit opened", "kind", g.provider.Kind(), "provider_id", g.provider.ID())
	}
}

func (g *Gateway) recordSuccess(ctx context.Context) {
	if g.breaker == nil {
		return
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.metrics.SetBreakerOpen(string(g.provider.Kind()), false)
		g.logger.InfoContext(ctx, "provider circuit closed", "kind", g.provider.Kind(), "provider_id", g.provider.ID())
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
