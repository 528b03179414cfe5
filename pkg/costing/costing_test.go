package costing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/constrictor/constrictor/pkg/constraints"
)

type fakeEvaluator struct {
	value float64
	err   error
	vars  map[string]interface{}
}

func (f *fakeEvaluator) EvaluateCost(_ context.Context, _ string, vars map[string]interface{}) (float64, error) {
	f.vars = vars
	return f.value, f.err
}

func float(v float64) *float64 {
	return &v
}

func testDataset() (constraints.Form, []constraints.Record) {
	form := constraints.Form{
		"level":  set("500", "850"),
		"param":  set("Z", "T"),
		"number": set("1", "2", "3"),
	}
	records := []constraints.Record{
		{"level": set("500"), "param": set("Z", "T")},
		{"level": set("850"), "param": set("T")},
	}
	return form, records
}

func TestCompute(t *testing.T) {
	form, records := testDataset()
	selection := constraints.Selection{
		"level":  set("500", "850"),
		"param":  set("Z", "T"),
		"number": set("1", "2"),
	}
	cfg := Config{
		GranuleSize: 10,
		Units: []CostUnit{
			{ID: "granules", Kind: UnitGranules, Limits: map[Origin]float64{OriginAPI: 100, OriginUI: 5}},
			{ID: "size", Kind: UnitSize, Limits: map[Origin]float64{OriginAPI: 1000}, Max: float(50)},
			{ID: "cpu", Kind: UnitScript, Script: "granules * 2"},
		},
		CostBarSteps: []float64{1, 10},
	}
	eval := &fakeEvaluator{value: 12}

	info, err := Compute(context.Background(), form, selection, records, cfg, OriginUI, eval)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	if info.Granules != 6 {
		t.Errorf("Granules = %d, want 6", info.Granules)
	}
	if info.Size != 60 {
		t.Errorf("Size = %d, want 60", info.Size)
	}
	if diff := cmp.Diff(Costs{{"granules", 6}, {"size", 60}, {"cpu", 12}}, info.Costs); diff != "" {
		t.Errorf("Costs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Costs{{"granules", 5}}, info.Limits); diff != "" {
		t.Errorf("Limits mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]ExceededCost{{ID: "size", Cost: 60, Max: 50}}, info.MaxCostsExceeded); diff != "" {
		t.Errorf("MaxCostsExceeded mismatch (-want +got):\n%s", diff)
	}
	if eval.vars["granules"] != int64(6) {
		t.Errorf("script granules var = %v, want 6", eval.vars["granules"])
	}
	sel, ok := eval.vars["selection"].(map[string]interface{})
	if !ok {
		t.Fatalf("script selection var has type %T", eval.vars["selection"])
	}
	if diff := cmp.Diff([]string{"1", "2"}, sel["number"]); diff != "" {
		t.Errorf("script selection[number] mismatch (-want +got):\n%s", diff)
	}

	cost := HighestCostLimitRatio(*info)
	if cost.ID != "granules" || cost.Cost != 6 || cost.Limit != 5 {
		t.Errorf("HighestCostLimitRatio() = %+v", cost)
	}
}

func TestCompute_DefaultGranuleSize(t *testing.T) {
	form, records := testDataset()
	selection := constraints.Selection{"level": set("500"), "param": set("Z")}
	cfg := Config{Units: []CostUnit{{ID: "size", Kind: UnitSize}}}

	info, err := Compute(context.Background(), form, selection, records, cfg, OriginAPI, nil)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if info.Size != 1 {
		t.Errorf("Size = %d, want 1", info.Size)
	}
	if len(info.Limits) != 0 {
		t.Errorf("Limits = %v, want none", info.Limits)
	}
}

func TestCompute_Errors(t *testing.T) {
	form, records := testDataset()
	selection := constraints.Selection{"level": set("500"), "param": set("Z")}

	t.Run("script without evaluator", func(t *testing.T) {
		cfg := Config{Units: []CostUnit{{ID: "cpu", Kind: UnitScript, Script: "1"}}}
		_, err := Compute(context.Background(), form, selection, records, cfg, OriginAPI, nil)
		if !errors.Is(err, ErrNoScriptEvaluator) {
			t.Errorf("Compute() error = %v, want ErrNoScriptEvaluator", err)
		}
	})

	t.Run("script failure", func(t *testing.T) {
		boom := errors.New("boom")
		cfg := Config{Units: []CostUnit{{ID: "cpu", Kind: UnitScript, Script: "1"}}}
		_, err := Compute(context.Background(), form, selection, records, cfg, OriginAPI, &fakeEvaluator{err: boom})
		if !errors.Is(err, boom) {
			t.Errorf("Compute() error = %v, want boom", err)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		cfg := Config{Units: []CostUnit{{ID: "x", Kind: "bogus"}}}
		if _, err := Compute(context.Background(), form, selection, records, cfg, OriginAPI, nil); err == nil {
			t.Error("Compute() expected error for unknown kind")
		}
	})

	t.Run("too large", func(t *testing.T) {
		sel := constraints.Selection{"level": set("500", "850"), "param": set("Z", "T")}
		_, err := Compute(context.Background(), form, sel, records, Config{}, OriginAPI, nil, WithMaxGranules(2), WithMaxExpansion(2))
		if !errors.Is(err, ErrEstimateTooLarge) {
			t.Errorf("Compute() error = %v, want ErrEstimateTooLarge", err)
		}
	})
}

func TestCheckRequestValidity(t *testing.T) {
	form, _ := testDataset()

	if err := CheckRequestValidity(form, constraints.Selection{"level": set("500")}, 1); err != nil {
		t.Errorf("CheckRequestValidity() = %v, want nil", err)
	}

	err := CheckRequestValidity(form, constraints.Selection{"level": set("500", "1000")}, 1)
	var verr *constraints.ValidationError
	if !errors.As(err, &verr) || verr.Field != "level" {
		t.Errorf("CheckRequestValidity() = %v, want invalid level", err)
	}

	err = CheckRequestValidity(form, constraints.Selection{"level": set("500")}, 0)
	if !errors.As(err, &verr) {
		t.Errorf("CheckRequestValidity() = %v, want no-data error", err)
	}

	// parameters outside the form are not checked
	if err := CheckRequestValidity(form, constraints.Selection{"format": set("grib")}, 3); err != nil {
		t.Errorf("CheckRequestValidity() = %v, want nil", err)
	}
}

func TestParseOrigin(t *testing.T) {
	tests := []struct {
		in      string
		want    Origin
		wantErr bool
	}{
		{"", OriginAPI, false},
		{"api", OriginAPI, false},
		{"ui", OriginUI, false},
		{"batch", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOrigin(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOrigin(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOrigin(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
