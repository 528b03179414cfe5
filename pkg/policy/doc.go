// Package policy admits or rejects costed requests with Open Policy Agent.
//
// Every estimate produces an EstimateInput: the dataset, the request origin,
// the granule count, the costs and limits keyed by cost unit, the units above
// their hard maximum and the cost with the highest cost to limit ratio. The
// Engine evaluates the deny set of every enabled policy against that input.
//
// # Architecture
//
//  1. Engine - Compiles Rego modules and evaluates them against estimates
//  2. Loader - Loads custom policies from .rego and .json files and watches them
//  3. Built-in Policies - cost-limits, origin-limit and empty-request
//
// # Usage
//
//	logger := zerolog.New(os.Stderr)
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//
//	input := policy.NewEstimateInput(datasetID, costing.OriginAPI, info, request)
//	result, err := eng.EvaluateEstimate(ctx, input)
//	if err != nil {
//	    return err
//	}
//	if !result.Allowed {
//	    return fmt.Errorf("request rejected: %s", result.Reason())
//	}
//
// # Writing Policies
//
// Policies use Rego v1 syntax and define a deny set in their own package.
// Entries are either strings or objects with message, severity and cost_id
// fields:
//
//	# Refuse whole-archive requests from the api.
//	# severity: error
//	package custom.archive
//
//	deny contains msg if {
//	    input.origin == "api"
//	    input.granules > 100000
//	    msg := sprintf("%d granules requested", [input.granules])
//	}
//
// The leading comment block of a .rego file becomes the description and a
// "# severity:" line sets the default severity. JSON files carry a Policy
// document with the Rego source in its rego field.
//
// # Severity
//
// Violations of error and critical severity deny the request. Info and
// warning findings are returned as warnings. A policy that fails to evaluate
// is reported as a warning as well.
//
// # Reloading
//
// LoadPolicies replaces every custom policy at once and keeps the built-in
// ones. WatchPolicies does the same whenever a watched file changes; if any
// policy fails to compile the previous set stays in place.
package policy
