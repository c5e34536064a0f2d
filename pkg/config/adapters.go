package config

import (
	"fmt"

	"github.com/marmos91/locationd/pkg/adapter"
	"github.com/marmos91/locationd/pkg/adapter/location"
	"github.com/marmos91/locationd/pkg/dispatch"
	"github.com/marmos91/locationd/pkg/metrics"
)

// CreateAdapters creates all enabled adapters from the configuration.
//
// Parameters:
//   - cfg: The complete configuration
//   - m: Optional metrics collector shared by the adapters (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: If no adapter is enabled
func CreateAdapters(cfg *Config, m metrics.LocationMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.Location.Enabled {
		adapters = append(adapters, location.New(cfg.Adapters.Location, dispatch.ModeLocation, m))
	}

	if cfg.Adapters.Game.Enabled {
		adapters = append(adapters, location.New(cfg.Adapters.Game, dispatch.ModeGame, m))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
