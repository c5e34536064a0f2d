package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/locationd/pkg/adapter/location"
	"github.com/spf13/viper"
)

// Config represents the complete locationd server configuration.
//
// This structure captures all configurable aspects of the server including:
//   - Logging configuration
//   - Server-wide settings (shutdown, metrics endpoint)
//   - Listener configuration for the location and game adapters
//   - Checkpoint backend selection and configuration (backend-specific)
//
// Configuration sources (in order of precedence):
//  1. Legacy server arguments (/l, /f)
//  2. Environment variables (LOCATIOND_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Checkpoint Configuration Pattern:
// Each backend defines its own configuration type. The Config struct holds
// type-specific sections (checkpoint.file, checkpoint.badger, checkpoint.s3)
// and only the section matching checkpoint.type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Adapters contains listener configurations
	Adapters AdaptersConfig `mapstructure:"adapters"`

	// Checkpoint selects and configures directory persistence
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path. A file path keeps the
	// console output on stdout and appends a copy of every line to the file.
	Output string `mapstructure:"output" validate:"required"`
}

// IsFile reports whether Output names a log file rather than a console stream.
func (c LoggingConfig) IsFile() bool {
	return c.Output != "" && c.Output != "stdout" && c.Output != "stderr"
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig configures the HTTP metrics endpoint.
type MetricsConfig struct {
	// Enabled starts the /metrics and /healthz endpoint
	Enabled bool `mapstructure:"enabled"`

	// Port is the HTTP port of the endpoint
	Port int `mapstructure:"port" validate:"min=0,max=65535"`
}

// AdaptersConfig contains the listener configurations.
//
// Uses location.LocationConfig directly for both adapters; they only differ
// in the message family they serve.
type AdaptersConfig struct {
	// Location serves directory lookups and updates (whois and HTTP)
	Location location.LocationConfig `mapstructure:"location"`

	// Game serves the peer coordination and highscore messages
	Game location.LocationConfig `mapstructure:"game"`
}

// CheckpointConfig specifies how the directory is persisted.
//
// The Type field determines which backend is used. Only the corresponding
// type-specific section is decoded.
type CheckpointConfig struct {
	// Type selects the backend
	// Valid values: none, file, badger, s3
	Type string `mapstructure:"type" validate:"required,oneof=none file badger s3"`

	// Interval additionally writes a checkpoint on this period. 0 disables it.
	Interval time.Duration `mapstructure:"interval" validate:"min=0"`

	// File contains file backend configuration
	// Only used when Type = "file"
	File map[string]any `mapstructure:"file"`

	// Badger contains BadgerDB backend configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`

	// S3 contains S3 backend configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (LOCATIOND_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: LOCATIOND_ADAPTERS_LOCATION_PORT=4300
	v.SetEnvPrefix("LOCATIOND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("adapters.location.enabled", true)
	v.SetDefault("adapters.game.enabled", false)

	// Set here rather than in ApplyDefaults so an explicit 0 survives.
	for _, name := range []string{"location", "game"} {
		v.SetDefault("adapters."+name+".read_timeout", DefaultIOTimeout)
		v.SetDefault("adapters."+name+".write_timeout", DefaultIOTimeout)
	}

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// envKeys are the scalar settings that may be set from the environment
// without appearing in a config file.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"server.metrics.enabled",
	"server.metrics.port",
	"adapters.location.enabled",
	"adapters.location.port",
	"adapters.location.max_connections",
	"adapters.location.read_timeout",
	"adapters.location.write_timeout",
	"adapters.game.enabled",
	"adapters.game.port",
	"adapters.game.read_timeout",
	"adapters.game.write_timeout",
	"checkpoint.type",
	"checkpoint.interval",
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "locationd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "locationd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
