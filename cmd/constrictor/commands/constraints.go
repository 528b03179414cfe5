package commands

import (
	"github.com/spf13/cobra"

	"github.com/constrictor/constrictor/pkg/engine"
)

func newConstraintsCommand() *cobra.Command {
	var (
		datasetPath string
		id          string
		selection   string
	)

	cmd := &cobra.Command{
		Use:   "constraints",
		Short: "Narrow a download form against its constraints",
		Long: `Print the form state of a partial selection: for every form parameter,
the values that can still be chosen without leaving the valid combinations.

Parameters the constraints do not mention keep their full domain. Selected
values the constraints never allow are dropped.`,
		Example: `  # Form state with a year selected
  constrictor constraints --dataset era5.cue --selection '{"year": "2021"}'

  # Pick one dataset of a multi-dataset file, selection from a file
  constrictor constraints --dataset datasets/ --id era5 --selection @selection.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadDatasets(cmd, []string{datasetPath})
			if err != nil {
				return err
			}
			dsID, err := datasetID(registry, id)
			if err != nil {
				return err
			}
			raw, err := parseSelection(selection)
			if err != nil {
				return err
			}

			est, err := engine.NewEstimator(registry)
			if err != nil {
				return err
			}

			state, err := est.ApplyConstraints(cmd.Context(), dsID, raw)
			if err != nil {
				return err
			}

			loggerFrom(cmd).WithField("parameters", len(state)).Debug("Computed form state")
			return printOutput(cmd.OutOrStdout(), state)
		},
	}

	cmd.Flags().StringVar(&datasetPath, "dataset", "", "dataset definition file or directory")
	cmd.Flags().StringVar(&id, "id", "", "dataset id when the definition holds several datasets")
	cmd.Flags().StringVar(&selection, "selection", "", "selection as a JSON object, or @file")
	_ = cmd.MarkFlagRequired("dataset")

	return cmd
}
