package config

import (
	"github.com/marmos91/locationd/pkg/metrics"
	promMetrics "github.com/marmos91/locationd/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// LocationMetrics is shared by the adapters and the checkpoint writer
	// (never nil, uses noop if disabled)
	LocationMetrics metrics.LocationMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates the Prometheus-backed collector
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns the no-op collector
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			LocationMetrics: metrics.NewNoopLocationMetrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{
			Port: cfg.Server.Metrics.Port,
		}),
		LocationMetrics: promMetrics.NewLocationMetrics(),
	}
}
