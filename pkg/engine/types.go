package engine

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/constrictor/constrictor/pkg/costing"
	"github.com/constrictor/constrictor/pkg/policy"
)

// Config holds estimator configuration.
type Config struct {
	// MaxGranules bounds the distinct granules a safe estimate may expand.
	// Zero disables the bound.
	MaxGranules int64 `json:"max_granules" yaml:"max_granules" validate:"gte=0"`

	// Concurrency is the number of estimates EstimateBatch runs at once.
	Concurrency int `json:"concurrency" yaml:"concurrency" validate:"gte=1,lte=256"`

	// Safe selects exact deduplicated granule counting. Requests can opt out.
	Safe bool `json:"safe" yaml:"safe"`
}

// DefaultConfig returns the default estimator configuration.
func DefaultConfig() Config {
	return Config{
		MaxGranules: costing.DefaultMaxGranules,
		Concurrency: 8,
		Safe:        true,
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid estimator configuration: %w", err)
	}
	return nil
}

// EstimateRequest is one request to cost.
type EstimateRequest struct {
	// RequestID identifies the request. A random id is assigned when empty.
	RequestID string `json:"request_id,omitempty"`

	// DatasetID is the dataset the request targets.
	DatasetID string `json:"dataset_id" validate:"required"`

	// Origin is api or ui. Empty means api.
	Origin string `json:"origin,omitempty" validate:"omitempty,oneof=api ui"`

	// Selection maps parameter names to a scalar value or a list of values.
	Selection map[string]interface{} `json:"selection"`

	// Unsafe requests the additive granule count, which over-counts
	// overlapping constraints but never expands combinations.
	Unsafe bool `json:"unsafe,omitempty"`
}

// EstimateResult is the cost picture of one request.
type EstimateResult struct {
	RequestID string         `json:"request_id"`
	DatasetID string         `json:"dataset_id"`
	Origin    costing.Origin `json:"origin"`

	// Granules is the number of granules the selection resolves to.
	Granules int64 `json:"granules"`

	// Size is granules times the dataset's granule size.
	Size int64 `json:"size"`

	// Costs are the values of every cost unit, in configuration order.
	Costs costing.Costs `json:"costs"`

	// Limits are the limits for the request origin.
	Limits costing.Costs `json:"limits"`

	// MaxCostsExceeded lists the units above their hard maximum.
	MaxCostsExceeded []costing.ExceededCost `json:"max_costs_exceeded,omitempty"`

	// Cost is the cost with the highest cost to limit ratio.
	Cost costing.RequestCost `json:"cost"`

	// Policy is the admission verdict, when a policy evaluator is configured.
	Policy *policy.Result `json:"policy,omitempty"`

	// Request is the selection with every value list sorted.
	Request map[string][]string `json:"request"`

	// Duration is how long the estimate took.
	Duration time.Duration `json:"duration"`
}

// Allowed reports whether the request may be submitted. Without a policy
// verdict only the hard maxima apply.
func (r *EstimateResult) Allowed() bool {
	if r.Policy != nil {
		return r.Policy.Allowed
	}
	return len(r.MaxCostsExceeded) == 0
}

// Reason returns why the request is not allowed, or the empty string.
func (r *EstimateResult) Reason() string {
	if r.Allowed() {
		return ""
	}
	if r.Policy != nil {
		return r.Policy.Reason()
	}
	return fmt.Sprintf("cost limits exceeded: %s is %v, maximum %v",
		r.MaxCostsExceeded[0].ID, r.MaxCostsExceeded[0].Cost, r.MaxCostsExceeded[0].Max)
}

// BatchResult pairs a batch entry with its result or error.
type BatchResult struct {
	Result *EstimateResult `json:"result,omitempty"`
	Err    error           `json:"-"`
}
