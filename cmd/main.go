package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "token_renewer",
		Short:         "Keeps admin console sessions alive by renewing their login tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: config/config.yaml or ./config.yaml)")

	root.AddCommand(
		newServeCommand(&configPath),
		newRenewCommand(&configPath),
		newImportCommand(&configPath),
		newExportCommand(&configPath),
	)
	return root
}
