package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/constrictor/constrictor/pkg/telemetry"
)

var (
	// Global flags
	verbose       bool
	jsonOutput    bool
	logFormat     string
	traceExporter string
	otlpEndpoint  string

	// serve-metrics flags
	metricsAddr = ":9090"
	metricsPath = "/metrics"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "constrictor",
		Short: "Constrictor - dataset request narrowing and cost estimation",
		Long: `Constrictor narrows dataset download forms against their constraints
and estimates the cost of retrieval requests.

Features:
  - Dataset definitions in CUE, JSON or YAML
  - Form narrowing against valid parameter combinations
  - Granule counting with safe and fast modes
  - Cost limits per request origin, scripted cost units via Starlark
  - Admission policies in Rego
  - SQLite catalogue with an estimate audit log`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			tel, err := newTelemetry(version)
			if err != nil {
				return fmt.Errorf("failed to set up telemetry: %w", err)
			}
			cmd.SetContext(tel.WithContext(cmd.Context()))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if tel := telemetry.FromTelemetryContext(cmd.Context()); tel != nil {
				return tel.Shutdown(context.Background())
			}
			return nil
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace-exporter", "none", "trace exporter (none, stdout, otlp)")
	rootCmd.PersistentFlags().StringVar(&otlpEndpoint, "otlp-endpoint", "localhost:4317", "OTLP collector endpoint")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newConstraintsCommand())
	rootCmd.AddCommand(newEstimateCommand())
	rootCmd.AddCommand(newCatalogueCommand())
	rootCmd.AddCommand(newServeMetricsCommand())

	return rootCmd
}

// newTelemetry builds command telemetry from the global flags. Events are
// delivered synchronously so audit records are written before the command
// returns.
func newTelemetry(version string) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Logging.Format = logFormat
	if verbose {
		cfg.Logging.Level = "debug"
	} else if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	cfg.Events.EnableAsync = false
	cfg.Metrics.ListenAddress = metricsAddr
	cfg.Metrics.Path = metricsPath

	if traceExporter != "" && traceExporter != "none" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = traceExporter
		cfg.Tracing.Endpoint = otlpEndpoint
	}

	return telemetry.NewTelemetry(cfg)
}

// loggerFrom returns the command logger.
func loggerFrom(cmd *cobra.Command) *telemetry.Logger {
	return telemetry.FromContext(cmd.Context())
}
