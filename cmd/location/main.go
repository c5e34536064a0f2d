// Command location looks up or updates one entry in a location server.
//
// Usage:
//
//	location [--lenient] [/h host] [/p port] [/t ms] [/h9|/h0|/h1] <name> [location]
//
// With only a name the current location is printed; with a name and a
// location the entry is updated.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/marmos91/locationd/internal/logger"
	"github.com/marmos91/locationd/pkg/client"
	"github.com/spf13/cobra"
)

var (
	lenient  bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "location [/h host] [/p port] [/t ms] [/h9|/h0|/h1] <name> [location]",
	Short: "Look up or update a name in a location server",
	Long: `location sends a single lookup or update to a location server and prints
the result.

Arguments:
  /h <host>   server hostname (default ` + client.DefaultHost + `)
  /p <port>   server port (default 43)
  /t <ms>     reply timeout in milliseconds, 0 or less waits forever
  /h9 /h0 /h1 use HTTP/0.9, HTTP/1.0 or HTTP/1.1 instead of whois`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().BoolVar(&lenient, "lenient", false, "Print the reply without checking the response status")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "WARN", "Diagnostic log level (DEBUG, INFO, WARN, ERROR)")

	// Flag parsing stops at the first slash argument so values such as
	// "/t -1" reach ParseArgs untouched.
	rootCmd.Flags().SetInterspersed(false)
}

func run(cmd *cobra.Command, args []string) error {
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logLevel)

	opts, _, err := client.ParseArgs(args)
	if err != nil {
		if errors.Is(err, client.ErrNoArguments) {
			_ = cmd.Usage()
		}
		return err
	}

	result, err := client.New(opts).Do(context.Background())
	if err != nil {
		return err
	}

	for _, line := range result.Report(!lenient) {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
