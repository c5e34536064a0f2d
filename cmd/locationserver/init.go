package main

import (
	"fmt"

	"github.com/marmos91/locationd/pkg/config"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			path string
			err  error
		)
		if configFile != "" {
			path = configFile
			err = config.InitConfigToPath(path, forceInit)
		} else {
			path, err = config.InitConfig(forceInit)
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
		fmt.Fprintf(cmd.OutOrStdout(), "Start the server with: locationserver --config %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config file")
}
