package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "uplink-server",
		Short:        "Authoritative server for the Uplink hacking simulation",
		Long:         "uplink-server runs the 5 Hz simulation clock over every active session and exposes it through an HTTP API and a WebSocket push channel.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newSeedCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}
