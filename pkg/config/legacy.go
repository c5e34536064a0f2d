package config

import (
	"fmt"

	"github.com/marmos91/locationd/internal/logger"
	"github.com/marmos91/locationd/pkg/checkpoint"
)

// ApplyLegacyArgs overlays the historical server arguments on cfg:
//
//	/l <path>   append log output to <path>
//	/f <path>   checkpoint the directory to <path> (file backend)
//
// A problem with one argument never stops the server. It is logged,
// returned, and the argument is skipped: a missing path, an unwritable
// path, a checkpoint path equal to the log path, or an unknown argument.
func ApplyLegacyArgs(cfg *Config, args []string) []error {
	var problems []error
	report := func(err error) {
		logger.Error("%v", err)
		problems = append(problems, err)
	}

	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "/l":
			if i+1 >= len(args) {
				report(fmt.Errorf("argument /l supplied without a filepath following"))
				continue
			}
			i++
			path := args[i]

			if err := checkpoint.CheckWritable(path); err != nil {
				report(fmt.Errorf("you do not have permissions to write to %s: %w", path, err))
				continue
			}
			cfg.Logging.Output = path
			logger.Info("Log file will be stored in %s", path)

		case "/f":
			if i+1 >= len(args) {
				report(fmt.Errorf("argument /f supplied without a filepath following"))
				continue
			}
			i++
			path := args[i]

			if cfg.Logging.IsFile() && path == cfg.Logging.Output {
				report(fmt.Errorf("cannot use the same file for the directory as the log file: %s", path))
				continue
			}
			if err := checkpoint.CheckWritable(path); err != nil {
				report(fmt.Errorf("you do not have permissions to write to %s: %w", path, err))
				continue
			}

			if cfg.Checkpoint.File == nil {
				cfg.Checkpoint.File = make(map[string]any)
			}
			cfg.Checkpoint.Type = "file"
			cfg.Checkpoint.File["path"] = path
			logger.Info("Directory file will be stored in %s", path)

		default:
			report(fmt.Errorf("could not identify the command in the argument list: %s", arg))
		}
	}

	return problems
}
