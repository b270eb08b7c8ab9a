// Package httptransport is the operational HTTP surface: liveness,
// readiness, Prometheus metrics and verification provider status.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"rentguard/internal/platform/metrics"
	"rentguard/internal/verification/gateway"
	"rentguard/pkg/platform/httputil"
	"rentguard/pkg/platform/middleware/requestid"
	"rentguard/pkg/platform/middleware/requesttime"
	"rentguard/pkg/requestcontext"
)

const readinessTimeout = 2 * time.Second

// Check is one readiness dependency.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// ProviderHealth reports per-kind verification provider health.
type ProviderHealth interface {
	Health(ctx context.Context) []gateway.Status
}

type Handler struct {
	providers ProviderHealth
	checks    []Check
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewHandler(providers ProviderHealth, checks []Check, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{providers: providers, checks: checks, metrics: m, logger: logger}
}

// Register mounts the ops endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.HandleLive)
	r.Get("/readyz", h.HandleReady)
	r.Get("/v1/providers/status", h.HandleProviderStatus)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.metrics.Registry, promhttp.HandlerOpts{}))
	}
}

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	h.Register(r)
	return r
}

func (h *Handler) HandleLive(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readyResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}

// HandleReady probes every dependency concurrently; any failure is a 503.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	results := make([]error, len(h.checks))
	var eg errgroup.Group
	for i, c := range h.checks {
		eg.Go(func() error {
			results[i] = c.Probe(ctx)
			return nil
		})
	}
	_ = eg.Wait()

	resp := readyResponse{Status: "ready", Dependencies: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for i, c := range h.checks {
		err := results[i]
		h.metrics.ObserveReadiness(c.Name, err == nil)
		if err != nil {
			h.logger.WarnContext(ctx, "readiness check failed",
				"request_id", requestcontext.RequestID(r.Context()),
				"dependency", c.Name,
				"error", err,
			)
			resp.Dependencies[c.Name] = err.Error()
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Dependencies[c.Name] = "ok"
	}
	httputil.WriteJSON(w, status, resp)
}

type providerStatusResponse struct {
	CheckedAt time.Time        `json:"checked_at"`
	Healthy   bool             `json:"healthy"`
	Providers []gateway.Status `json:"providers"`
}

func (h *Handler) HandleProviderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := providerStatusResponse{CheckedAt: requestcontext.Now(ctx), Healthy: true}
	if h.providers != nil {
		resp.Providers = h.providers.Health(ctx)
	}
	for _, st := range resp.Providers {
		if !st.Healthy {
			resp.Healthy = false
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
