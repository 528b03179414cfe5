package engine_test

import (
	"context"
	"fmt"

	"github.com/constrictor/constrictor/pkg/catalogue"
	"github.com/constrictor/constrictor/pkg/constraints"
	"github.com/constrictor/constrictor/pkg/costing"
	"github.com/constrictor/constrictor/pkg/engine"
)

func exampleDataset() *catalogue.Dataset {
	limit := 4.0
	return &catalogue.Dataset{
		ID: "sis-example",
		Form: []constraints.Widget{
			{Name: "year", Type: constraints.WidgetStringList, Details: constraints.WidgetDetails{Values: []interface{}{"2020", "2021"}}},
			{Name: "month", Type: constraints.WidgetStringList, Details: constraints.WidgetDetails{Values: []interface{}{"01", "02"}}},
		},
		Constraints: []map[string]interface{}{
			{"year": []interface{}{"2020"}, "month": []interface{}{"01", "02"}},
			{"year": []interface{}{"2021"}, "month": []interface{}{"01"}},
		},
		Costing: costing.Config{
			Units: []costing.CostUnit{
				{ID: "fields", Kind: costing.UnitGranules, Limits: map[costing.Origin]float64{"api": 2}, Max: &limit},
			},
		},
	}
}

func ExampleEstimator_ApplyConstraints() {
	est, err := engine.NewEstimator(catalogue.NewRegistry(exampleDataset()))
	if err != nil {
		fmt.Println(err)
		return
	}

	state, err := est.ApplyConstraints(context.Background(), "sis-example", map[string]interface{}{
		"year": "2021",
	})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(state["year"], state["month"])

	// Output:
	// [2020 2021] [01]
}

func ExampleEstimator_EstimateCost() {
	est, err := engine.NewEstimator(catalogue.NewRegistry(exampleDataset()))
	if err != nil {
		fmt.Println(err)
		return
	}

	result, err := est.EstimateCost(context.Background(), engine.EstimateRequest{
		DatasetID: "sis-example",
		Selection: map[string]interface{}{
			"year":  []string{"2020", "2021"},
			"month": []string{"01", "02"},
		},
	})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(result.Granules, result.Cost.ID, result.Cost.Cost, result.Cost.Limit, result.Allowed())

	// Output:
	// 3 fields 3 2 true
}
