// Package cmd defines and implements the CLI commands for the portfolio-edge executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portfolio-edge",
		Short: "Visitor notification edge service for the portfolio site.",
		Long: `portfolio-edge receives visit beacons from the portfolio site, remembers
each visitor for a day and relays one Telegram message per new visitor.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newNotifyCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
