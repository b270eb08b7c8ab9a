// Package metrics builds the process-wide Prometheus registry and the
// collectors that do not belong to any one bounded context.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Registry *prometheus.Registry

	BuildInfo   *prometheus.GaugeVec
	ReadyChecks *prometheus.CounterVec
}

// New creates a registry with the Go runtime and process collectors.
func New(version string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &Metrics{
		Registry: reg,
		BuildInfo: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "rentguard_build_info",
			Help: "Constant 1, labelled with the running build version",
		}, []string{"version"}),
		ReadyChecks: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rentguard_readiness_checks_total",
			Help: "Readiness probe results per dependency",
		}, []string{"dependency", "result"}),
	}
	m.BuildInfo.WithLabelValues(version).Set(1)
	return m
}

// ObserveReadiness is nil-safe so handlers can run without metrics.
func (m *Metrics) ObserveReadiness(dependency string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.ReadyChecks.WithLabelValues(dependency, result).Inc()
}
