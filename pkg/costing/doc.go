// Package costing estimates how many granules a request resolves to and what
// it costs.
//
// A granule is one fully resolved combination of restricted parameter values.
// EstimateGranules intersects every constraint record with the selection,
// expands the matching records and counts distinct granules, then multiplies
// by the number of selected combinations of always-valid parameters.
//
// Safe estimates materialize granules and are bounded by WithMaxGranules;
// selections whose expansion would exceed the bound fail with
// ErrEstimateTooLarge instead of running unbounded.
//
// Cost units layered on top of the granule count are configured per dataset
// with Config and evaluated by Compute. HighestCostLimitRatio picks the unit
// closest to its limit and MaxCostsExceeded reports hard ceiling violations.
package costing
