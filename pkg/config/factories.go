package config

import (
	"context"
	"fmt"

	"github.com/marmos91/locationd/internal/logger"
	"github.com/marmos91/locationd/pkg/checkpoint"
	"github.com/mitchellh/mapstructure"
)

// CreateCheckpointBackend creates the checkpoint backend selected by
// configuration.
//
// This factory uses the Type field to determine which backend to create,
// then decodes the type-specific map into the backend's configuration type
// and validates it.
//
// Supported types:
//   - "none": no persistence; returns (nil, nil)
//   - "file": two-line text file with a blake3 digest sidecar
//   - "badger": embedded BadgerDB key-value store
//   - "s3": object in an S3 (or compatible) bucket
//
// Parameters:
//   - ctx: Context for initialization operations (AWS config loading)
//   - cfg: Checkpoint configuration
func CreateCheckpointBackend(ctx context.Context, cfg *CheckpointConfig) (checkpoint.Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "", "none":
		logger.Warn("Checkpointing disabled: directory changes will not survive a restart")
		return nil, nil
	case "file":
		return createFileBackend(cfg.File)
	case "badger":
		return createBadgerBackend(cfg.Badger)
	case "s3":
		return createS3Backend(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown checkpoint type: %q", cfg.Type)
	}
}

// decodeOptions decodes a backend section and validates the result.
func decodeOptions(kind string, options map[string]any, out any) error {
	if err := mapstructure.Decode(options, out); err != nil {
		return fmt.Errorf("failed to decode %s checkpoint config: %w", kind, err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%s checkpoint: %w", kind, formatValidationError(err))
	}
	return nil
}

// createFileBackend creates a file checkpoint backend. The path is checked
// for write access so a misconfigured path fails at startup rather than at
// the first checkpoint.
func createFileBackend(options map[string]any) (checkpoint.Backend, error) {
	var backendCfg checkpoint.FileConfig
	if err := decodeOptions("file", options, &backendCfg); err != nil {
		return nil, err
	}

	if err := checkpoint.CheckWritable(backendCfg.Path); err != nil {
		return nil, fmt.Errorf("file checkpoint: %s is not writable: %w", backendCfg.Path, err)
	}

	backend, err := checkpoint.NewFileBackend(backendCfg)
	if err != nil {
		return nil, err
	}

	logger.Info("Directory checkpoints will be stored in %s", backendCfg.Path)
	return backend, nil
}

// createBadgerBackend creates a BadgerDB checkpoint backend.
func createBadgerBackend(options map[string]any) (checkpoint.Backend, error) {
	var backendCfg checkpoint.BadgerConfig
	if err := decodeOptions("badger", options, &backendCfg); err != nil {
		return nil, err
	}

	backend, err := checkpoint.NewBadgerBackend(backendCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger checkpoint backend: %w", err)
	}

	logger.Info("Directory checkpoints will be stored in badger at %s", backendCfg.DBPath)
	return backend, nil
}

// createS3Backend creates an S3 checkpoint backend.
func createS3Backend(ctx context.Context, options map[string]any) (checkpoint.Backend, error) {
	var backendCfg checkpoint.S3Config
	if err := decodeOptions("s3", options, &backendCfg); err != nil {
		return nil, err
	}

	backend, err := checkpoint.NewS3Backend(ctx, backendCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 checkpoint backend: %w", err)
	}

	logger.Info("Directory checkpoints will be stored in s3://%s", backendCfg.Bucket)
	return backend, nil
}
