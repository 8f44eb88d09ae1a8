// Package metrics exposes registry metrics to Prometheus.
//
// Metrics owns an isolated prometheus.Registry, so several instances can
// live in one process (tests do this). Every metric carries a constant
// "service" label.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registry collectors and the HTTP server serving them.
type Metrics struct {
	Server   *http.Server
	Registry *prometheus.Registry

	registrations     *prometheus.CounterVec
	lookups           *prometheus.CounterVec
	ruleViolations    *prometheus.CounterVec
	limitRejections   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and the /metrics server. The server is
// started by RegisterMetricsLifecycle.
func NewMetrics(cfg Config) *Metrics {
	if cfg.Address == "" {
		cfg.Address = DefaultMetricsAddress
	}

	registry := prometheus.NewRegistry()
	wrapped := prometheus.WrapRegistererWith(prometheus.Labels{"service": cfg.ServiceName}, registry)

	m := &Metrics{Registry: registry}
	m.registrations = createCounterVec(cfg.Namespace, "registry_registrations_total",
		"Registrations by artifact type, mode (create or update) and outcome", []string{"type", "mode", "outcome"})
	m.lookups = createCounterVec(cfg.Namespace, "registry_lookups_total",
		"Content lookups by match kind (exact, canonical, dereferenced, miss) and outcome", []string{"match", "outcome"})
	m.ruleViolations = createCounterVec(cfg.Namespace, "registry_rule_violations_total",
		"Rejected registrations by rule type", []string{"rule"})
	m.limitRejections = createCounterVec(cfg.Namespace, "registry_limit_rejections_total",
		"Requests rejected by a configured limit", []string{"limit"})
	m.operationDuration = createHistogramVec(cfg.Namespace, "registry_operation_duration_seconds",
		"Duration of registry operations in seconds", []string{"operation"}, prometheus.DefBuckets)

	wrapped.MustRegister(
		m.registrations,
		m.lookups,
		m.ruleViolations,
		m.limitRejections,
		m.operationDuration,
	)

	if cfg.EnableDefaultCollectors {
		wrapped.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewBuildInfoCollector(),
		)
	}

	m.Server = &http.Server{
		Addr:    cfg.Address,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	return m
}

func createCounterVec(namespace, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func createHistogramVec(namespace, name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}
