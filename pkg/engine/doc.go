// Package engine serves form narrowing and cost estimation for the datasets
// of a catalogue.
//
// # Overview
//
// The Estimator ties the pure narrowing and costing packages to a dataset
// catalogue, the admission policies and telemetry:
//
//  1. Lookup - Fetch the dataset from a Catalogue and normalize its form and constraints
//  2. Narrow - ApplyConstraints returns the values still reachable from a partial selection
//  3. Cost - EstimateCost counts granules and evaluates every cost unit
//  4. Admit - A PolicyEvaluator decides whether the request may be submitted
//
// # Usage
//
//	est, err := engine.NewEstimator(registry,
//	    engine.WithPolicyEvaluator(policies),
//	    engine.WithTelemetry(tel))
//	if err != nil {
//	    return err
//	}
//
//	result, err := est.EstimateCost(ctx, engine.EstimateRequest{
//	    DatasetID: "reanalysis-era5-single-levels",
//	    Origin:    "api",
//	    Selection: map[string]interface{}{"year": []string{"2020", "2021"}},
//	})
//
// A selection that matches no data is not an error. The result has zero
// granules and its cost is marked invalid with the reason. VerifyCost turns a
// rejected estimate into an error with code COST_LIMIT_EXCEEDED.
//
// # Error Handling
//
// Every error returned by the Estimator is an *EngineError with a class and
// a code:
//
//   - VALIDATION_ERROR: malformed selection or request (permanent)
//   - NOT_FOUND: unknown dataset (permanent)
//   - ESTIMATE_TOO_LARGE: the granule bound was hit (permanent)
//   - COST_LIMIT_EXCEEDED: the request may not be submitted (permanent)
//   - TIMEOUT: the context was cancelled (transient)
//   - INTERNAL_ERROR: catalogue, script or policy failures
//
// The underlying errors stay reachable with errors.Is and errors.As.
//
// # Concurrency
//
// An Estimator is safe for concurrent use. EstimateBatch costs requests with
// bounded concurrency and returns the results in input order.
package engine
