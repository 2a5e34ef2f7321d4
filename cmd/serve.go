package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jalaljaleh/portfolio-edge/internal/config"
	"github.com/jalaljaleh/portfolio-edge/internal/server"
)

// newServeCmd creates the 'serve' subcommand which runs the HTTP service
// until SIGINT or SIGTERM.
func newServeCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the notification HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			app, err := server.Build(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("app build failed: %w", err)
			}
			if err := app.Run(cmd.Context()); err != nil {
				zap.L().Error("application error", zap.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml); env vars override it")
	return cmd
}
