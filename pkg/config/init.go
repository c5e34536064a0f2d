package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/locationd/pkg/adapter/location"
	"gopkg.in/yaml.v3"
)

const configHeader = `# locationd Configuration File
#
# Values can be overridden with LOCATIOND_* environment variables, for
# example LOCATIOND_ADAPTERS_LOCATION_PORT=4300.
`

// InitConfig writes a sample configuration file to the default location.
//
// Parameters:
//   - force: Overwrite an existing file
//
// Returns the path of the written file.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to path, creating
// parent directories as needed. An existing file is only replaced when force
// is set.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// field is one commented key of a generated YAML mapping.
type field struct {
	key     string
	comment string
	value   any
}

// mapping builds a YAML mapping node whose keys carry head comments.
// Nested *yaml.Node values are used as-is; everything else is encoded.
func mapping(fields ...field) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range fields {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: f.key, HeadComment: f.comment}

		value, ok := f.value.(*yaml.Node)
		if !ok {
			value = &yaml.Node{}
			if d, isDuration := f.value.(time.Duration); isDuration {
				f.value = d.String()
			}
			if err := value.Encode(f.value); err != nil {
				return nil, fmt.Errorf("encode %s: %w", f.key, err)
			}
		}
		node.Content = append(node.Content, key, value)
	}
	return node, nil
}

func listenerNode(cfg location.LocationConfig) (*yaml.Node, error) {
	rateLimit, err := mapping(
		field{"requests_per_second", "Accepted connections per second (0 = unlimited)", cfg.RateLimit.RequestsPerSecond},
		field{"burst", "", cfg.RateLimit.Burst},
	)
	if err != nil {
		return nil, err
	}

	return mapping(
		field{"enabled", "", cfg.Enabled},
		field{"port", "", cfg.Port},
		field{"max_connections", "Concurrent connections (0 = unlimited)", cfg.MaxConnections},
		field{"read_timeout", "Time allowed to receive one complete request", cfg.ReadTimeout},
		field{"write_timeout", "", cfg.WriteTimeout},
		field{"shutdown_timeout", "Wait for active connections before force-closing them", cfg.ShutdownTimeout},
		field{"metrics_log_interval", "", cfg.MetricsLogInterval},
		field{"rate_limit", "", rateLimit},
	)
}

// generateYAMLWithComments renders cfg as a commented YAML document.
func generateYAMLWithComments(cfg *Config) (string, error) {
	logging, err := mapping(
		field{"level", "DEBUG, INFO, WARN or ERROR", cfg.Logging.Level},
		field{"format", "text or json", cfg.Logging.Format},
		field{"output", "stdout, stderr, or a file path (console output is kept)", cfg.Logging.Output},
	)
	if err != nil {
		return "", err
	}

	metricsNode, err := mapping(
		field{"enabled", "Serve Prometheus metrics on /metrics and a health check on /healthz", cfg.Server.Metrics.Enabled},
		field{"port", "", cfg.Server.Metrics.Port},
	)
	if err != nil {
		return "", err
	}
	server, err := mapping(
		field{"shutdown_timeout", "", cfg.Server.ShutdownTimeout},
		field{"metrics", "", metricsNode},
	)
	if err != nil {
		return "", err
	}

	locationNode, err := listenerNode(cfg.Adapters.Location)
	if err != nil {
		return "", err
	}
	gameNode, err := listenerNode(cfg.Adapters.Game)
	if err != nil {
		return "", err
	}
	adapters, err := mapping(
		field{"location", "Directory lookups and updates (whois, HTTP/0.9, HTTP/1.0, HTTP/1.1)", locationNode},
		field{"game", "Peer coordination and highscore messages", gameNode},
	)
	if err != nil {
		return "", err
	}

	checkpointNode, err := mapping(
		field{"type", "none, file, badger or s3", cfg.Checkpoint.Type},
		field{"interval", "Also checkpoint on this period (0 = only when idle and at shutdown)", cfg.Checkpoint.Interval},
		field{"file", "Used when type = file. verify checks the .b3 digest on startup", cfg.Checkpoint.File},
		field{"badger", "Used when type = badger", cfg.Checkpoint.Badger},
		field{"s3", "Used when type = s3 (bucket and region are required)", cfg.Checkpoint.S3},
	)
	if err != nil {
		return "", err
	}

	root, err := mapping(
		field{"logging", "", logging},
		field{"server", "", server},
		field{"adapters", "", adapters},
		field{"checkpoint", "", checkpointNode},
	)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	buf.WriteString("\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	return buf.String(), nil
}
