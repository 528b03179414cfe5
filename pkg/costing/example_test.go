package costing_test

import (
	"fmt"

	"github.com/constrictor/constrictor/pkg/constraints"
	"github.com/constrictor/constrictor/pkg/costing"
)

func ExampleEstimateGranules() {
	form := constraints.Form{
		"level": constraints.NewValueSet("500", "850"),
		"param": constraints.NewValueSet("Z", "T"),
	}
	records := []constraints.Record{
		{"level": constraints.NewValueSet("500"), "param": constraints.NewValueSet("Z", "T")},
		{"level": constraints.NewValueSet("850"), "param": constraints.NewValueSet("T")},
	}
	selection := constraints.Selection{
		"level": constraints.NewValueSet("500", "850"),
		"param": constraints.NewValueSet("Z", "T"),
	}

	n, err := costing.EstimateGranules(form, selection, records)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(n)

	// Output:
	// 3
}

func ExampleHighestCostLimitRatio() {
	info := costing.CostingInfo{
		Costs:  costing.Costs{{ID: "a", Value: 10}, {ID: "b", Value: 10}},
		Limits: costing.Costs{{ID: "a", Value: 20}, {ID: "b", Value: 0}},
	}

	cost := costing.HighestCostLimitRatio(info)
	fmt.Println(cost.ID, cost.Cost, cost.Limit)

	// Output:
	// b 10 0
}
