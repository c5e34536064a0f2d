package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/locationd/pkg/adapter/location"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Struct tags cover value ranges; validateCustomRules covers rules that
// span several fields.
//
// Returns an error describing the first validation failure.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if !cfg.Adapters.Location.Enabled && !cfg.Adapters.Game.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if cfg.Adapters.Location.Enabled && cfg.Adapters.Game.Enabled &&
		cfg.Adapters.Location.Port != 0 && cfg.Adapters.Location.Port == cfg.Adapters.Game.Port {
		return fmt.Errorf("adapters: location and game adapters both use port %d", cfg.Adapters.Location.Port)
	}

	if err := validateListener("location", &cfg.Adapters.Location); err != nil {
		return err
	}
	if err := validateListener("game", &cfg.Adapters.Game); err != nil {
		return err
	}

	if cfg.Checkpoint.Type == "file" && cfg.Logging.IsFile() {
		if path, _ := cfg.Checkpoint.File["path"].(string); path == cfg.Logging.Output {
			return fmt.Errorf("checkpoint.file.path: cannot be the same file as logging.output (%s)", path)
		}
	}

	return nil
}

// validateListener checks one adapter section. Negative read and write
// timeouts are allowed and disable the deadline.
func validateListener(name string, cfg *location.LocationConfig) error {
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("adapters.%s.shutdown_timeout: must be positive", name)
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
