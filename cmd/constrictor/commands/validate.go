package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/constrictor/constrictor/pkg/catalogue"
)

type validateOutput struct {
	Datasets []string          `json:"datasets" yaml:"datasets"`
	Files    []string          `json:"files" yaml:"files"`
	Issues   []catalogue.Issue `json:"issues,omitempty" yaml:"issues,omitempty"`
	Valid    bool              `json:"valid" yaml:"valid"`
}

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Validate dataset definition files",
		Long: `Validate dataset definitions written in CUE, JSON or YAML.

This command checks:
  - Syntax and schema conformance
  - Widget declarations of the form
  - Constraint parameters and values against the form
  - Cost unit configuration
  - Dataset ids unique across all files`,
		Example: `  # Validate a directory of definitions
  constrictor validate ./datasets

  # Validate single files
  constrictor validate era5.cue satellite.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFrom(cmd)
			logger.WithField("paths", args).Info("Validating dataset definitions")

			result, err := catalogue.NewLoader().Load(cmd.Context(), args)
			if err != nil {
				return err
			}

			out := validateOutput{
				Files:  result.SourceFiles,
				Issues: result.Issues,
				Valid:  result.Err() == nil,
			}
			for _, d := range result.Datasets {
				out.Datasets = append(out.Datasets, d.ID)
			}

			if err := printOutput(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if !out.Valid {
				return fmt.Errorf("%d files checked: %w", len(result.SourceFiles), result.Err())
			}
			return nil
		},
	}

	return cmd
}
