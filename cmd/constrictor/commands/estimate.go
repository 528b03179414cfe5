package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/constrictor/constrictor/pkg/costing"
	"github.com/constrictor/constrictor/pkg/engine"
	"github.com/constrictor/constrictor/pkg/policy"
	"github.com/constrictor/constrictor/pkg/stores"
	"github.com/constrictor/constrictor/pkg/telemetry"
)

// estimateOutput is the printed form of an estimate.
type estimateOutput struct {
	RequestID        string                 `json:"request_id" yaml:"request_id"`
	DatasetID        string                 `json:"dataset_id" yaml:"dataset_id"`
	Origin           string                 `json:"origin" yaml:"origin"`
	Granules         int64                  `json:"granules" yaml:"granules"`
	Size             int64                  `json:"size" yaml:"size"`
	Costs            map[string]float64     `json:"costs" yaml:"costs"`
	Limits           map[string]float64     `json:"limits,omitempty" yaml:"limits,omitempty"`
	Cost             costing.RequestCost    `json:"cost" yaml:"cost"`
	MaxCostsExceeded []costing.ExceededCost `json:"max_costs_exceeded,omitempty" yaml:"max_costs_exceeded,omitempty"`
	Allowed          bool                   `json:"allowed" yaml:"allowed"`
	Reason           string                 `json:"reason,omitempty" yaml:"reason,omitempty"`
	Violations       []policy.Violation     `json:"violations,omitempty" yaml:"violations,omitempty"`
	Warnings         []policy.Violation     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Request          map[string][]string    `json:"request" yaml:"request"`
}

func newEstimateOutput(r *engine.EstimateResult) estimateOutput {
	out := estimateOutput{
		RequestID:        r.RequestID,
		DatasetID:        r.DatasetID,
		Origin:           string(r.Origin),
		Granules:         r.Granules,
		Size:             r.Size,
		Costs:            r.Costs.Map(),
		Cost:             r.Cost,
		MaxCostsExceeded: r.MaxCostsExceeded,
		Allowed:          r.Allowed(),
		Reason:           r.Reason(),
		Request:          r.Request,
	}
	if len(r.Limits) > 0 {
		out.Limits = r.Limits.Map()
	}
	if r.Policy != nil {
		out.Violations = r.Policy.Violations
		out.Warnings = r.Policy.Warnings
	}
	return out
}

func newEstimateCommand() *cobra.Command {
	var (
		datasetPath string
		dbPath      string
		id          string
		selection   string
		origin      string
		policyPaths []string
		maxGranules int64
		unsafe      bool
		audit       bool
		verify      bool
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the cost of a retrieval request",
		Long: `Estimate how many granules a request resolves to, what every cost unit
of the dataset charges for it, and whether it may be submitted.

The request is checked against the hard cost maxima of the dataset and,
with --policy, against admission policies written in Rego. The printed
cost is the unit with the highest cost to limit ratio for the origin.

Datasets come from definition files (--dataset) or from the SQLite
catalogue (--db). With --db and --audit the estimate is recorded.`,
		Example: `  # Estimate a request against a definition file
  constrictor estimate --dataset era5.cue --selection '{"year": ["2020", "2021"]}'

  # Fast, additive granule count for the web form
  constrictor estimate --dataset era5.cue --selection @request.json --unsafe --origin ui

  # Estimate against the catalogue with policies and an audit record
  constrictor estimate --db constrictor.db --id era5 --policy ./policies --audit --selection @request.json

  # Exit with an error if the request would be refused
  constrictor estimate --dataset era5.cue --selection @request.json --verify`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tel := telemetry.FromTelemetryContext(ctx)

			if (datasetPath == "") == (dbPath == "") {
				return fmt.Errorf("exactly one of --dataset and --db is required")
			}
			if audit && dbPath == "" {
				return fmt.Errorf("--audit requires --db")
			}

			raw, err := parseSelection(selection)
			if err != nil {
				return err
			}

			var (
				cat   engine.Catalogue
				dsID  = id
				store *stores.SQLiteStore
			)
			if dbPath != "" {
				if dsID == "" {
					return fmt.Errorf("--id is required with --db")
				}
				store, err = openStore(ctx, dbPath)
				if err != nil {
					return err
				}
				defer store.Close()
				cat = store

				if audit {
					tel.Events.Subscribe(store.AuditSubscriber(ctx, func(err error) {
						loggerFrom(cmd).WithError(err).Error("Failed to audit estimate")
					}), stores.AuditFilter())
				}
			} else {
				registry, err := loadDatasets(cmd, []string{datasetPath})
				if err != nil {
					return err
				}
				if dsID, err = datasetID(registry, id); err != nil {
					return err
				}
				cat = registry
			}

			cfg := engine.DefaultConfig()
			if cmd.Flags().Changed("max-granules") {
				cfg.MaxGranules = maxGranules
			}
			opts := []engine.Option{engine.WithConfig(cfg), engine.WithTelemetry(tel)}

			if len(policyPaths) > 0 {
				policies, err := policy.NewEngine(loggerFrom(cmd).Zerolog())
				if err != nil {
					return err
				}
				if err := policies.LoadPolicies(ctx, policyPaths); err != nil {
					return err
				}
				opts = append(opts, engine.WithPolicyEvaluator(policies))
			}

			est, err := engine.NewEstimator(cat, opts...)
			if err != nil {
				return err
			}

			req := engine.EstimateRequest{
				DatasetID: dsID,
				Origin:    origin,
				Selection: raw,
				Unsafe:    unsafe,
			}

			var result *engine.EstimateResult
			if verify {
				result, err = est.VerifyCost(ctx, req)
			} else {
				result, err = est.EstimateCost(ctx, req)
			}
			if result != nil {
				if perr := printOutput(cmd.OutOrStdout(), newEstimateOutput(result)); perr != nil {
					return perr
				}
			}

			// audit records must land before the store closes
			if store != nil {
				if serr := tel.Events.Shutdown(context.Background()); serr != nil {
					return errors.Join(err, serr)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&datasetPath, "dataset", "", "dataset definition file or directory")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite catalogue path")
	cmd.Flags().StringVar(&id, "id", "", "dataset id")
	cmd.Flags().StringVar(&selection, "selection", "", "selection as a JSON object, or @file")
	cmd.Flags().StringVar(&origin, "origin", string(costing.OriginAPI), "request origin (api, ui)")
	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "policy files or directories")
	cmd.Flags().Int64Var(&maxGranules, "max-granules", costing.DefaultMaxGranules, "granule expansion bound of safe estimates, 0 disables")
	cmd.Flags().BoolVar(&unsafe, "unsafe", false, "count granules additively without deduplication")
	cmd.Flags().BoolVar(&audit, "audit", false, "record the estimate in the catalogue")
	cmd.Flags().BoolVar(&verify, "verify", false, "fail when the request is not allowed")

	return cmd
}
