package costing

import (
	"errors"
	"fmt"
)

// ErrEstimateTooLarge is returned when an exact granule count would require
// expanding more combinations than the configured bound, or when the count
// itself overflows.
var ErrEstimateTooLarge = errors.New("estimate too large")

// ErrNoScriptEvaluator is returned when a script cost unit is configured but
// no evaluator was supplied.
var ErrNoScriptEvaluator = errors.New("no script evaluator configured")

// EstimateError carries the details of an aborted estimate.
type EstimateError struct {
	// Reason is a short description of which bound was hit.
	Reason string

	// Limit is the configured bound, or 0 for arithmetic overflow.
	Limit int64

	// Observed is the value that crossed the bound, when known.
	Observed int64

	Err error
}

// Error implements the error interface.
func (e *EstimateError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("%v: %s (limit %d, observed %d)", e.Err, e.Reason, e.Limit, e.Observed)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Reason)
}

// Unwrap returns the sentinel error.
func (e *EstimateError) Unwrap() error {
	return e.Err
}

func tooLarge(reason string, limit, observed int64) error {
	return &EstimateError{
		Reason:   reason,
		Limit:    limit,
		Observed: observed,
		Err:      ErrEstimateTooLarge,
	}
}
