package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/constrictor/constrictor/pkg/stores"
)

var dbPath string

func newCatalogueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "catalogue",
		Aliases: []string{"catalog"},
		Short:   "Manage the SQLite dataset catalogue",
		Long: `Manage dataset definitions stored in a SQLite catalogue.

The catalogue holds validated definitions and the audit log of
estimates made with "constrictor estimate --db --audit".`,
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db", "constrictor.db", "SQLite catalogue path")

	cmd.AddCommand(newCatalogueImportCommand())
	cmd.AddCommand(newCatalogueListCommand())
	cmd.AddCommand(newCatalogueShowCommand())
	cmd.AddCommand(newCatalogueDeleteCommand())
	cmd.AddCommand(newCatalogueEstimatesCommand())

	return cmd
}

func newCatalogueImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <path>...",
		Short: "Import dataset definitions",
		Long: `Load, validate and store dataset definitions. Datasets that already
exist are replaced. Nothing is imported if any definition is invalid.`,
		Example: `  # Import a directory of definitions
  constrictor catalogue import ./datasets --db constrictor.db`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			registry, err := loadDatasets(cmd, args)
			if err != nil {
				return err
			}

			store, err := openStore(ctx, dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			var imported []*stores.DatasetRecord
			for _, d := range registry.List() {
				rec, err := store.UpsertDataset(ctx, d)
				if err != nil {
					return err
				}
				loggerFrom(cmd).WithFields(map[string]interface{}{
					"dataset":  rec.ID,
					"checksum": rec.Checksum,
				}).Info("Imported dataset")
				imported = append(imported, rec)
			}

			return printOutput(cmd.OutOrStdout(), summarize(imported))
		},
	}

	return cmd
}

type datasetSummary struct {
	ID        string `json:"id" yaml:"id"`
	Title     string `json:"title,omitempty" yaml:"title,omitempty"`
	Checksum  string `json:"checksum" yaml:"checksum"`
	Source    string `json:"source,omitempty" yaml:"source,omitempty"`
	UpdatedAt string `json:"updated_at" yaml:"updated_at"`
}

func summarize(records []*stores.DatasetRecord) []datasetSummary {
	out := make([]datasetSummary, len(records))
	for i, r := range records {
		out[i] = datasetSummary{
			ID:        r.ID,
			Title:     r.Title,
			Checksum:  r.Checksum,
			Source:    r.Source,
			UpdatedAt: r.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}
	return out
}

func newCatalogueListCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListDatasets(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), summarize(records))
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of datasets")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of datasets to skip")

	return cmd
}

func newCatalogueShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored dataset definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			d, err := store.GetDataset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), d)
		},
	}

	return cmd
}

func newCatalogueDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete stored datasets",
		Long:  `Delete datasets from the catalogue. Their audited estimates are kept.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, id := range args {
				if err := store.DeleteDataset(cmd.Context(), id); err != nil {
					return err
				}
				loggerFrom(cmd).WithField("dataset", id).Info("Deleted dataset")
			}
			return nil
		},
	}

	return cmd
}

func newCatalogueEstimatesCommand() *cobra.Command {
	var (
		dataset  string
		allowed  bool
		rejected bool
		limit    int
		offset   int
	)

	cmd := &cobra.Command{
		Use:   "estimates",
		Short: "List audited estimates",
		Example: `  # Rejected estimates of one dataset
  constrictor catalogue estimates --dataset era5 --rejected`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if allowed && rejected {
				return fmt.Errorf("--allowed and --rejected are exclusive")
			}

			filter := stores.EstimateFilter{Limit: limit, Offset: offset}
			if dataset != "" {
				filter.DatasetID = &dataset
			}
			if allowed || rejected {
				filter.Allowed = &allowed
			}

			store, err := openStore(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListEstimates(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "filter by dataset id")
	cmd.Flags().BoolVar(&allowed, "allowed", false, "only allowed estimates")
	cmd.Flags().BoolVar(&rejected, "rejected", false, "only rejected estimates")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of estimates")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of estimates to skip")

	return cmd
}
