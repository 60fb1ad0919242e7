// Package cli implements the fincore-risk-admin command-line tool.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turtacn/fincore-risk/internal/config"
	"github.com/turtacn/fincore-risk/internal/domain/service"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

// NewRootCmd builds the `fincore-risk-admin` command tree.
// NewRootCmd 构建 `fincore-risk-admin` 命令树。
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fincore-risk-admin",
		Short: "A CLI tool for running and inspecting the fincore risk engine.",
		Long: `fincore-risk-admin runs the risk engine offline against data files,
classifies scores and severity labels, tails the published alert stream and
resets the shared alert tracker.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "config.yaml whose engine section overrides the defaults")

	root.AddCommand(newComputeCmd(), newClassifyCmd(), newAlertsCmd(), newTrackerCmd())
	return root
}

// Execute is the main entry point for the CLI application.
// It parses the command-line arguments and executes the matching command. If an
// error occurs, it prints the error and exits.
// Execute 是 CLI 应用程序的主入口点。
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// engineConfig returns the engine section of --config, or the defaults.
func engineConfig(cmd *cobra.Command) (service.EngineConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return service.DefaultEngineConfig(), nil
	}
	cfg, err := config.LoadConfig(path, logger.NewNoopLogger())
	if err != nil {
		return service.EngineConfig{}, err
	}
	return cfg.Engine.ToService()
}
