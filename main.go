package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/datalytyx/databricks-maintenance/pkg/config"
	"github.com/datalytyx/databricks-maintenance/pkg/logger"
)

var (
	configPath    string
	workspaceName string
	metricsFile   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "databricks-maintenance",
		Short:         "Databricks Maintenance Toolkit",
		Long:          "Find clusters on deprecated Databricks runtimes, recommend upgrades and check installed libraries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add global flags for configuration
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (default ~/.databricks-maintenance.yml)")
	rootCmd.PersistentFlags().StringVarP(&workspaceName, "workspace", "w", "", "Workspace name from the configuration")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on success")

	// Add commands
	rootCmd.AddCommand(NewCheckRuntimesCommand())
	rootCmd.AddCommand(NewListRuntimesCommand())
	rootCmd.AddCommand(NewCheckLibrariesCommand())
	rootCmd.AddCommand(NewGenerateReportCommand())
	rootCmd.AddCommand(NewCacheCommand())
	rootCmd.AddCommand(NewVersionCommand())

	// Set up context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Set up persistent pre-run to initialize config and logger
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Skip config loading for version command
		if cmd.Name() == "version" {
			return nil
		}

		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		// Setup logger and update context
		ctx := logger.SetupLogger(cmd.Context(), cfg.Logging.LogLevel, cfg.Logging.LogDir)
		logger.BridgeAzureSDK(logger.GetLoggerFromContext(ctx))
		cmd.SetContext(ctx)
		return nil
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if metricsFile == "" {
			return nil
		}
		if err := prometheus.WriteToTextfile(metricsFile, prometheus.DefaultGatherer); err != nil {
			return fmt.Errorf("failed to write metrics to %s: %w", metricsFile, err)
		}
		return nil
	}

	// Execute command with context
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		os.Exit(1)
	}
}
