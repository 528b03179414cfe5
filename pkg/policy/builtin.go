package policy

import (
	"time"
)

// Built-in policy names.
const (
	PolicyCostLimits   = "cost-limits"
	PolicyOriginLimit  = "origin-limit"
	PolicyEmptyRequest = "empty-request"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		costLimitsPolicy(),
		originLimitPolicy(),
		emptyRequestPolicy(),
	}
}

// costLimitsPolicy rejects requests whose costs exceed a hard maximum.
func costLimitsPolicy() Policy {
	return Policy{
		Name:        PolicyCostLimits,
		Description: "Rejects requests with a cost above the dataset's hard maximum",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"costing", "admission"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package constrictor.cost_limits

deny contains violation if {
	some exceeded in input.max_costs_exceeded
	violation := {
		"message": sprintf("cost limits exceeded: %s is %v, maximum %v", [exceeded.id, exceeded.cost, exceeded.max]),
		"severity": "error",
		"cost_id": exceeded.id,
	}
}
`,
	}
}

// originLimitPolicy rejects programmatic requests above their limit. The
// interactive form shows the cost bar instead.
func originLimitPolicy() Policy {
	return Policy{
		Name:        PolicyOriginLimit,
		Description: "Rejects api requests whose highest cost exceeds its limit",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"costing", "admission"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package constrictor.origin_limit

deny contains violation if {
	input.origin == "api"
	highest := input.highest
	highest.cost > highest.limit
	violation := {
		"message": sprintf("request too large: %s is %v, limit %v", [highest.id, highest.cost, highest.limit]),
		"severity": "error",
		"cost_id": highest.id,
	}
}
`,
	}
}

// emptyRequestPolicy flags selections that match no data.
func emptyRequestPolicy() Policy {
	return Policy{
		Name:        PolicyEmptyRequest,
		Description: "Warns about selections that match no data",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"validity"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package constrictor.empty_request

deny contains violation if {
	input.granules == 0
	violation := {
		"message": "the selection does not match any data",
		"severity": "warning",
	}
}
`,
	}
}
