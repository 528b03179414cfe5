package commands

import (
	"github.com/spf13/cobra"

	"github.com/constrictor/constrictor/pkg/catalogue"
	"github.com/constrictor/constrictor/pkg/policy"
	"github.com/constrictor/constrictor/pkg/telemetry"
)

func newServeMetricsCommand() *cobra.Command {
	var (
		sources     []string
		policyPaths []string
	)

	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Expose Prometheus metrics",
		Long: `Serve Prometheus metrics until interrupted.

With --catalogue the definitions are loaded and watched; every reload
updates the loaded datasets gauge. With --policy the admission policies
are watched and recompiled on change.`,
		Example: `  # Serve metrics on the default address
  constrictor serve-metrics

  # Watch definitions and policies while serving
  constrictor serve-metrics --addr :9100 --catalogue ./datasets --policy ./policies`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tel := telemetry.FromTelemetryContext(ctx)
			logger := loggerFrom(cmd)

			metrics := tel.Metrics

			if len(sources) > 0 {
				registry, err := loadDatasets(cmd, sources)
				if err != nil {
					return err
				}
				metrics.SetDatasetsLoaded(registry.Len())

				watcher := catalogue.NewWatcher(catalogue.NewLoader(), registry, sources, logger.Zerolog())
				watcher.OnReload(func(result *catalogue.LoadResult) {
					metrics.SetDatasetsLoaded(len(result.Datasets))
					for _, source := range sources {
						_ = tel.Events.PublishCatalogueReloaded(source, len(result.Datasets))
					}
				})
				if err := watcher.Start(ctx); err != nil {
					return err
				}
				defer watcher.Stop()
			}

			if len(policyPaths) > 0 {
				policies, err := policy.NewEngine(logger.Zerolog())
				if err != nil {
					return err
				}
				loader, err := policies.WatchPolicies(ctx, policyPaths)
				if err != nil {
					return err
				}
				defer loader.StopWatching()
			}

			return metrics.ServeMetrics(ctx, logger)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "addr", ":9090", "listen address")
	cmd.Flags().StringVar(&metricsPath, "path", "/metrics", "metrics HTTP path")
	cmd.Flags().StringSliceVar(&sources, "catalogue", nil, "dataset definition files or directories to watch")
	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "policy files or directories to watch")

	return cmd
}
