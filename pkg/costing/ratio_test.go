package costing

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHighestCostLimitRatio(t *testing.T) {
	tests := []struct {
		name   string
		costs  Costs
		limits Costs
		want   RequestCost
	}{
		{
			name:   "tie keeps first id",
			costs:  Costs{{"cost_id_1", 10}, {"cost_id_2", 10}},
			limits: Costs{{"cost_id_1", 20}, {"cost_id_2", 20}},
			want:   RequestCost{ID: "cost_id_1", Cost: 10, Limit: 20, RequestIsValid: true},
		},
		{
			name:   "higher ratio wins",
			costs:  Costs{{"cost_id_1", 10}, {"cost_id_2", 30}},
			limits: Costs{{"cost_id_1", 20}, {"cost_id_2", 20}},
			want:   RequestCost{ID: "cost_id_2", Cost: 30, Limit: 20, RequestIsValid: true},
		},
		{
			name:   "zero limit is infinite",
			costs:  Costs{{"cost_id_1", 10}, {"cost_id_2", 10}},
			limits: Costs{{"cost_id_1", 20}, {"cost_id_2", 0}},
			want:   RequestCost{ID: "cost_id_2", Cost: 10, Limit: 0, RequestIsValid: true},
		},
		{
			name:   "zero limit with zero cost ties at zero",
			costs:  Costs{{"a", 0}, {"b", 0}},
			limits: Costs{{"a", 0}, {"b", 5}},
			want:   RequestCost{ID: "a", Cost: 0, Limit: 0, RequestIsValid: true},
		},
		{
			name:   "unlimited costs are not ranked",
			costs:  Costs{{"a", 1000}, {"b", 1}},
			limits: Costs{{"b", 10}},
			want:   RequestCost{ID: "b", Cost: 1, Limit: 10, RequestIsValid: true},
		},
		{
			name:   "limited id without cost counts as zero",
			costs:  Costs{{"a", 5}},
			limits: Costs{{"missing", 1}, {"a", 10}},
			want:   RequestCost{ID: "a", Cost: 5, Limit: 10, RequestIsValid: true},
		},
		{
			name:  "no limits",
			costs: Costs{{"a", 5}},
			want:  RequestCost{RequestIsValid: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HighestCostLimitRatio(CostingInfo{Costs: tt.costs, Limits: tt.limits})
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("HighestCostLimitRatio() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHighestCostLimitRatio_CostBarSteps(t *testing.T) {
	info := CostingInfo{
		Costs:        Costs{{"size", 50}},
		Limits:       Costs{{"size", 100}},
		CostBarSteps: []float64{10, 50, 100},
	}
	got := HighestCostLimitRatio(info)
	if diff := cmp.Diff([]float64{10, 50, 100}, got.CostBarSteps); diff != "" {
		t.Errorf("CostBarSteps mismatch (-want +got):\n%s", diff)
	}
	if got.Ratio() != 0.5 {
		t.Errorf("Ratio() = %v, want 0.5", got.Ratio())
	}
}

func TestRequestCostRatio(t *testing.T) {
	if r := (RequestCost{Cost: 1, Limit: 0}).Ratio(); !math.IsInf(r, 1) {
		t.Errorf("Ratio() = %v, want +Inf", r)
	}
	if r := (RequestCost{Cost: 0, Limit: 0}).Ratio(); r != 0 {
		t.Errorf("Ratio() = %v, want 0", r)
	}
}

func TestMaxCostsExceeded(t *testing.T) {
	costs := Costs{{"size", 120}, {"items", 5}, {"cpu", 10}}
	maxCosts := Costs{{"size", 100}, {"items", 5}}

	got := MaxCostsExceeded(costs, maxCosts)
	want := []ExceededCost{{ID: "size", Cost: 120, Max: 100}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MaxCostsExceeded() mismatch (-want +got):\n%s", diff)
	}

	if got := MaxCostsExceeded(costs, nil); len(got) != 0 {
		t.Errorf("MaxCostsExceeded(no maxima) = %v, want none", got)
	}
}

func TestCostsSet(t *testing.T) {
	var c Costs
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3)

	want := Costs{{"a", 3}, {"b", 2}}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("Costs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]float64{"a": 3, "b": 2}, c.Map()); diff != "" {
		t.Errorf("Map() mismatch (-want +got):\n%s", diff)
	}
}
