package policy

import (
	"math"
	"time"

	"github.com/constrictor/constrictor/pkg/costing"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that do not block a request.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the request.
	SeverityError Severity = "error"

	// SeverityCritical blocks the request and should be looked at by an operator.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether violations of this severity deny a request.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name" yaml:"name"`

	// Description provides a human-readable description.
	Description string `json:"description" yaml:"description"`

	// Rego contains the Rego policy code. The package must define a deny set.
	Rego string `json:"rego" yaml:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity" yaml:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Builtin marks policies shipped with the engine.
	Builtin bool `json:"builtin,omitempty" yaml:"builtin,omitempty"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy" yaml:"policy"`

	// CostID is the cost unit involved, if any.
	CostID string `json:"cost_id,omitempty" yaml:"cost_id,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message" yaml:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity" yaml:"severity"`

	// Details contains additional violation details.
	Details map[string]interface{} `json:"details,omitempty" yaml:"details,omitempty"`

	// DetectedAt is when the violation was detected.
	DetectedAt time.Time `json:"detected_at" yaml:"detected_at"`
}

// Result represents the result of policy evaluation.
type Result struct {
	// Allowed indicates if the request may be submitted.
	Allowed bool `json:"allowed" yaml:"allowed"`

	// Violations lists blocking violations.
	Violations []Violation `json:"violations,omitempty" yaml:"violations,omitempty"`

	// Warnings lists violations that don't block the request.
	Warnings []Violation `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at" yaml:"evaluated_at"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies" yaml:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Reason joins the messages of the blocking violations.
func (r *Result) Reason() string {
	reason := ""
	for i, v := range r.Violations {
		if i > 0 {
			reason += "; "
		}
		reason += v.Message
	}
	return reason
}

// EstimateInput is the document policies see as input.
type EstimateInput struct {
	// RequestID identifies the request, if known.
	RequestID string `json:"request_id,omitempty" yaml:"request_id,omitempty"`

	// DatasetID is the dataset the request targets.
	DatasetID string `json:"dataset_id" yaml:"dataset_id"`

	// Origin is the request origin (api or ui).
	Origin string `json:"origin" yaml:"origin"`

	// Granules is the estimated number of granules.
	Granules int64 `json:"granules" yaml:"granules"`

	// Size is the estimated size in dataset units.
	Size int64 `json:"size" yaml:"size"`

	// Costs maps cost unit ids to their values.
	Costs map[string]float64 `json:"costs" yaml:"costs"`

	// Limits maps cost unit ids to the limits of the origin.
	Limits map[string]float64 `json:"limits" yaml:"limits"`

	// MaxCostsExceeded lists the units above their hard maximum.
	MaxCostsExceeded []ExceededCost `json:"max_costs_exceeded" yaml:"max_costs_exceeded"`

	// Highest is the cost with the highest cost to limit ratio, if any limit applies.
	Highest *CostRatio `json:"highest,omitempty" yaml:"highest,omitempty"`

	// Request is the submitted selection as sorted lists.
	Request map[string][]string `json:"request,omitempty" yaml:"request,omitempty"`

	// Context provides additional evaluation context.
	Context *EvalContext `json:"context" yaml:"context"`
}

// ExceededCost is a cost above its hard maximum.
type ExceededCost struct {
	ID   string  `json:"id" yaml:"id"`
	Cost float64 `json:"cost" yaml:"cost"`
	Max  float64 `json:"max" yaml:"max"`
}

// CostRatio is the winning cost of the cost to limit ratio selection.
type CostRatio struct {
	ID    string  `json:"id" yaml:"id"`
	Cost  float64 `json:"cost" yaml:"cost"`
	Limit float64 `json:"limit" yaml:"limit"`
}

// EvalContext provides context information for policy evaluation.
type EvalContext struct {
	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	// Operation is the operation being performed (estimate, verify).
	Operation string `json:"operation,omitempty" yaml:"operation,omitempty"`

	// Metadata contains additional context metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NewEstimateInput builds the policy input of a costed request. Infinite
// costs are clamped to the largest float so the input stays JSON encodable.
func NewEstimateInput(datasetID string, origin costing.Origin, info *costing.CostingInfo, request map[string][]string) *EstimateInput {
	in := &EstimateInput{
		DatasetID:        datasetID,
		Origin:           string(origin),
		Granules:         info.Granules,
		Size:             info.Size,
		Costs:            finiteMap(info.Costs.Map()),
		Limits:           finiteMap(info.Limits.Map()),
		MaxCostsExceeded: make([]ExceededCost, 0, len(info.MaxCostsExceeded)),
		Request:          request,
		Context: &EvalContext{
			Timestamp: time.Now().UTC(),
			Operation: "estimate",
		},
	}

	for _, e := range info.MaxCostsExceeded {
		in.MaxCostsExceeded = append(in.MaxCostsExceeded, ExceededCost{
			ID:   e.ID,
			Cost: finite(e.Cost),
			Max:  finite(e.Max),
		})
	}

	if highest := costing.HighestCostLimitRatio(*info); highest.ID != "" {
		in.Highest = &CostRatio{
			ID:    highest.ID,
			Cost:  finite(highest.Cost),
			Limit: finite(highest.Limit),
		}
	}

	return in
}

func finite(v float64) float64 {
	switch {
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	case math.IsNaN(v):
		return 0
	}
	return v
}

func finiteMap(m map[string]float64) map[string]float64 {
	for k, v := range m {
		m[k] = finite(v)
	}
	return m
}
