// Command locationserver runs the location directory: lookups and updates
// over whois and HTTP/0.9, HTTP/1.0 and HTTP/1.1, plus the optional game
// listener.
//
// Usage:
//
//	locationserver [--config path] [/l logfile] [/f directoryfile]
//	locationserver init [--force]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "locationserver [/l logfile] [/f directoryfile]",
	Short: "Serve the location directory",
	Long: `locationserver keeps a directory of names and their locations and serves
lookups and updates over whois, HTTP/0.9, HTTP/1.0 and HTTP/1.1.

Configuration is read from the config file and LOCATIOND_* environment
variables. The /l and /f arguments override the log file and the
directory checkpoint file.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default: $XDG_CONFIG_HOME/locationd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level (DEBUG, INFO, WARN, ERROR)")

	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
