package gateway

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"rentguard/internal/proof"
	"rentguard/internal/verification/providers"
)

const healthCheckTimeout = 3 * time.Second

// Set routes requests to the gateway for their kind.
type Set struct {
	gateways map[proof.Kind]*Gateway
}

func NewSet(gws ...*Gateway) (*Set, error) {
	s := &Set{gateways: make(map[proof.Kind]*Gateway, len(gws))}
	for _, g := range gws {
		if _, dup := s.gateways[g.Kind()]; dup {
			return nil, fmt.Errorf("duplicate gateway for %s", g.Kind())
		}
		s.gateways[g.Kind()] = g
	}
	return s, nil
}

// Verify dispatches req by kind.
func (s *Set) Verify(ctx context.Context, req providers.Request) (*providers.Result, error) {
	g, ok := s.gateways[req.Kind()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", providers.ErrProviderNotFound, req.Kind())
	}
	return g.Verify(ctx, req)
}

// Status is one provider's health snapshot.
type Status struct {
	Kind        proof.Kind `json:"kind"`
	ProviderID  string     `json:"provider_id"`
	Protocol    string     `json:"protocol"`
	Healthy     bool       `json:"healthy"`
	BreakerOpen bool       `json:"breaker_open"`
	Error       string     `json:"error,omitempty"`
	Latency     string     `json:"latency"`
}

// Health checks every provider concurrently, in lifecycle order.
func (s *Set) Health(ctx context.Context) []Status {
	var kinds []proof.Kind
	for _, k := range proof.Kinds {
		if _, ok := s.gateways[k]; ok {
			kinds = append(kinds, k)
		}
	}

	out := make([]Status, len(kinds))
	var eg errgroup.Group
	for i, k := range kinds {
		g := s.gateways[k]
		eg.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			defer cancel()
			start := time.Now()
			err := g.provider.Health(checkCtx)
			st := Status{
				Kind:        k,
				ProviderID:  g.provider.ID(),
				Protocol:    string(g.provider.Capabilities().Protocol),
				Healthy:     err == nil,
				BreakerOpen: g.BreakerOpen(),
				Latency:     time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				st.Error = err.Error()
			}
			out[i] = st
			return nil
		})
	}
	_ = eg.Wait()
	return out
}
