package policy

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/constrictor/constrictor/pkg/costing"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	var names []string
	for _, p := range eng.ListPolicies() {
		names = append(names, p.Name)
		if !p.Builtin {
			t.Errorf("policy %s should be marked built in", p.Name)
		}
	}

	want := []string{PolicyCostLimits, PolicyEmptyRequest, PolicyOriginLimit}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("ListPolicies() mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateEstimate_Builtins(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name           string
		input          *EstimateInput
		expectAllowed  bool
		wantViolations []string
		wantWarnings   []string
	}{
		{
			name: "within limits",
			input: &EstimateInput{
				DatasetID: "era5",
				Origin:    "api",
				Granules:  4,
				Costs:     map[string]float64{"size": 40},
				Limits:    map[string]float64{"size": 100},
				Highest:   &CostRatio{ID: "size", Cost: 40, Limit: 100},
			},
			expectAllowed: true,
		},
		{
			name: "hard maximum exceeded",
			input: &EstimateInput{
				DatasetID:        "era5",
				Origin:           "ui",
				Granules:         400,
				MaxCostsExceeded: []ExceededCost{{ID: "size", Cost: 4000, Max: 1000}},
			},
			expectAllowed:  false,
			wantViolations: []string{PolicyCostLimits},
		},
		{
			name: "api over limit",
			input: &EstimateInput{
				DatasetID: "era5",
				Origin:    "api",
				Granules:  400,
				Highest:   &CostRatio{ID: "size", Cost: 4000, Limit: 100},
			},
			expectAllowed:  false,
			wantViolations: []string{PolicyOriginLimit},
		},
		{
			name: "ui over limit is allowed",
			input: &EstimateInput{
				DatasetID: "era5",
				Origin:    "ui",
				Granules:  400,
				Highest:   &CostRatio{ID: "size", Cost: 4000, Limit: 100},
			},
			expectAllowed: true,
		},
		{
			name: "zero limit with cost",
			input: &EstimateInput{
				DatasetID: "era5",
				Origin:    "api",
				Granules:  1,
				Highest:   &CostRatio{ID: "size", Cost: 1, Limit: 0},
			},
			expectAllowed:  false,
			wantViolations: []string{PolicyOriginLimit},
		},
		{
			name: "empty selection warns",
			input: &EstimateInput{
				DatasetID: "era5",
				Origin:    "api",
				Granules:  0,
			},
			expectAllowed: true,
			wantWarnings:  []string{PolicyEmptyRequest},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.EvaluateEstimate(ctx, tt.input)
			if err != nil {
				t.Fatalf("EvaluateEstimate() error = %v", err)
			}

			if result.Allowed != tt.expectAllowed {
				t.Errorf("Allowed = %v, want %v (violations %v)", result.Allowed, tt.expectAllowed, result.Violations)
			}
			if diff := cmp.Diff(tt.wantViolations, policyNames(result.Violations)); diff != "" {
				t.Errorf("violations mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantWarnings, policyNames(result.Warnings)); diff != "" {
				t.Errorf("warnings mismatch (-want +got):\n%s", diff)
			}
			if len(result.EvaluatedPolicies) != 3 {
				t.Errorf("EvaluatedPolicies = %v", result.EvaluatedPolicies)
			}
		})
	}
}

func policyNames(vs []Violation) []string {
	var names []string
	for _, v := range vs {
		names = append(names, v.Policy)
	}
	return names
}

func TestEvaluateEstimate_ViolationFields(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.EvaluateEstimate(context.Background(), &EstimateInput{
		DatasetID:        "era5",
		Origin:           "api",
		Granules:         10,
		MaxCostsExceeded: []ExceededCost{{ID: "size", Cost: 60, Max: 50}},
	})
	if err != nil {
		t.Fatalf("EvaluateEstimate() error = %v", err)
	}
	if len(result.Violations) != 1 {
		t.Fatalf("expected one violation, got %v", result.Violations)
	}

	v := result.Violations[0]
	if v.CostID != "size" || v.Severity != SeverityError {
		t.Errorf("violation = %+v", v)
	}
	if !strings.HasPrefix(v.Message, "cost limits exceeded: size") {
		t.Errorf("Message = %q", v.Message)
	}
	if result.Reason() != v.Message {
		t.Errorf("Reason() = %q, want %q", result.Reason(), v.Message)
	}
}

func TestEvaluateEstimate_CustomPolicy(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	err := eng.AddPolicy(ctx, Policy{
		Name:     "no-grib",
		Severity: SeverityError,
		Enabled:  true,
		Rego: `package custom.no_grib

deny contains msg if {
	some f in input.request.format
	f == "grib"
	msg := "grib is not served from this mirror"
}
`,
	})
	if err != nil {
		t.Fatalf("AddPolicy() error = %v", err)
	}

	input := &EstimateInput{
		DatasetID: "era5",
		Origin:    "ui",
		Granules:  1,
		Request:   map[string][]string{"format": {"grib"}},
	}
	result, err := eng.EvaluateEstimate(ctx, input)
	if err != nil {
		t.Fatalf("EvaluateEstimate() error = %v", err)
	}
	if result.Allowed {
		t.Fatal("expected the custom policy to deny")
	}
	if result.Violations[0].Message != "grib is not served from this mirror" {
		t.Errorf("Message = %q", result.Violations[0].Message)
	}

	if err := eng.DisablePolicy("no-grib"); err != nil {
		t.Fatalf("DisablePolicy() error = %v", err)
	}
	result, _ = eng.EvaluateEstimate(ctx, input)
	if !result.Allowed {
		t.Error("disabled policy must not deny")
	}

	if err := eng.EnablePolicy("nope"); err == nil {
		t.Error("expected an error for an unknown policy")
	}

	if err := eng.ReloadPolicies(ctx); err != nil {
		t.Fatalf("ReloadPolicies() error = %v", err)
	}
	if _, err := eng.GetPolicy("no-grib"); err == nil {
		t.Error("ReloadPolicies() should drop custom policies")
	}
}

func TestAddPolicy_Invalid(t *testing.T) {
	eng := newTestEngine(t)
	err := eng.AddPolicy(context.Background(), Policy{
		Name: "broken",
		Rego: "package broken\n\ndeny[msg] {",
	})
	if err == nil {
		t.Error("expected a parse error")
	}
}

func TestEvaluateEstimate_NilInput(t *testing.T) {
	eng := newTestEngine(t)
	if _, err := eng.EvaluateEstimate(context.Background(), nil); err == nil {
		t.Error("expected an error for nil input")
	}
}

func TestNewEstimateInput(t *testing.T) {
	info := &costing.CostingInfo{
		Granules: 6,
		Size:     60,
		Costs:    costing.Costs{{ID: "size", Value: 60}, {ID: "fields", Value: math.Inf(1)}},
		Limits:   costing.Costs{{ID: "size", Value: 50}},
		MaxCostsExceeded: []costing.ExceededCost{
			{ID: "size", Cost: 60, Max: 50},
		},
	}

	in := NewEstimateInput("era5", costing.OriginAPI, info, map[string][]string{"year": {"2020"}})

	if in.Origin != "api" || in.Granules != 6 || in.Size != 60 {
		t.Errorf("input = %+v", in)
	}
	if in.Costs["fields"] != math.MaxFloat64 {
		t.Errorf("infinite cost not clamped: %v", in.Costs["fields"])
	}
	if diff := cmp.Diff(&CostRatio{ID: "size", Cost: 60, Limit: 50}, in.Highest); diff != "" {
		t.Errorf("Highest mismatch (-want +got):\n%s", diff)
	}
	if len(in.MaxCostsExceeded) != 1 {
		t.Errorf("MaxCostsExceeded = %v", in.MaxCostsExceeded)
	}

	eng := newTestEngine(t)
	result, err := eng.EvaluateEstimate(context.Background(), in)
	if err != nil {
		t.Fatalf("EvaluateEstimate() error = %v", err)
	}
	if diff := cmp.Diff([]string{PolicyCostLimits, PolicyOriginLimit}, policyNames(result.Violations)); diff != "" {
		t.Errorf("violations mismatch (-want +got):\n%s", diff)
	}

	noLimits := &costing.CostingInfo{Granules: 1, Costs: costing.Costs{{ID: "size", Value: 1}}}
	if in := NewEstimateInput("era5", costing.OriginUI, noLimits, nil); in.Highest != nil {
		t.Errorf("Highest = %+v, want nil without limits", in.Highest)
	}
}
