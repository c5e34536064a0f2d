// Package metrics defines the observability hooks used by the location
// adapters and the checkpoint writer.
//
// Metrics are optional. Components receive a LocationMetrics and fall back to
// the no-op implementation when given nil, so the server runs the same with
// or without a registry.
//
// Usage:
//
//	metrics.InitRegistry()
//	m := prometheus.NewLocationMetrics()
//	adapter := location.New(config, dispatch.ModeLocation, m)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the process-wide registry with the Go runtime and
// process collectors already registered. Later calls are no-ops.
func InitRegistry() {
	registryOnce.Do(func() {
		r := prometheus.NewRegistry()
		r.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: "locationd"}),
		)
		registry = r
	})
}

// GetRegistry returns the registry, or nil while metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
