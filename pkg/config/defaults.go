package config

import (
	"strings"
	"time"

	"github.com/marmos91/locationd/pkg/adapter/location"
)

// Default listener ports.
const (
	DefaultLocationPort = 43
	DefaultGamePort     = 4343
	DefaultMetricsPort  = 9090
)

// DefaultIOTimeout is the read and write timeout of both listeners. An
// explicit zero or negative value disables the timeout, so this default is
// applied before unmarshalling (see Load) rather than by ApplyDefaults.
const DefaultIOTimeout = time.Second

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend sections are filled in for every type so generated config
//     files show all options
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyAdaptersDefaults(&cfg.Adapters)
	applyCheckpointDefaults(&cfg.Checkpoint)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = DefaultMetricsPort
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	// Enabled flags are not touched here: Load defaults location to enabled
	// and game to disabled before unmarshalling.
	if cfg.Location.Port == 0 {
		cfg.Location.Port = DefaultLocationPort
	}
	applyListenerDefaults(&cfg.Location)

	if cfg.Game.Port == 0 {
		cfg.Game.Port = DefaultGamePort
	}
	applyListenerDefaults(&cfg.Game)
}

// applyListenerDefaults sets the timeouts shared by both adapters.
// MaxConnections defaults to 0 (unlimited). Read and write timeouts keep
// their value: zero means disabled.
func applyListenerDefaults(cfg *location.LocationConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = 5 * time.Minute
	}
}

// applyCheckpointDefaults sets checkpoint defaults.
func applyCheckpointDefaults(cfg *CheckpointConfig) {
	if cfg.Type == "" {
		cfg.Type = "none"
	}

	if cfg.File == nil {
		cfg.File = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	if _, ok := cfg.File["path"]; !ok {
		cfg.File["path"] = "directory.txt"
	}
	if _, ok := cfg.File["verify"]; !ok {
		cfg.File["verify"] = false
	}
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = "/tmp/locationd-badger"
	}
	if _, ok := cfg.S3["key"]; !ok {
		cfg.S3["key"] = "locationd/directory.txt"
	}
	if _, ok := cfg.S3["compress"]; !ok {
		cfg.S3["compress"] = false
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Running without a config file
func GetDefaultConfig() *Config {
	cfg := &Config{
		Adapters: AdaptersConfig{
			Location: location.LocationConfig{
				Enabled:      true,
				ReadTimeout:  DefaultIOTimeout,
				WriteTimeout: DefaultIOTimeout,
			},
			Game: location.LocationConfig{
				ReadTimeout:  DefaultIOTimeout,
				WriteTimeout: DefaultIOTimeout,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
