package constraints_test

import (
	"fmt"

	"github.com/constrictor/constrictor/pkg/constraints"
)

// Example demonstrates narrowing a form while the user edits the level field.
func Example() {
	form, _ := constraints.ParseForm([]constraints.Widget{
		{Name: "level", Type: constraints.WidgetStringList, Details: constraints.WidgetDetails{Values: []string{"500", "850"}}},
		{Name: "param", Type: constraints.WidgetStringList, Details: constraints.WidgetDetails{Values: []string{"Z", "T"}}},
		{Name: "number", Type: constraints.WidgetStringChoice, Details: constraints.WidgetDetails{Values: "1"}},
	})

	records, _ := constraints.ParseConstraints([]map[string]interface{}{
		{"level": []interface{}{"500"}, "param": []interface{}{"Z"}},
		{"level": []interface{}{"850"}, "param": []interface{}{"T"}},
	})

	selection, _ := constraints.ParseSelection(map[string]interface{}{"level": "500"})

	state := constraints.ApplyConstraints(form, selection, records)
	fmt.Println("level:", state["level"])
	fmt.Println("param:", state["param"])
	fmt.Println("number:", state["number"])

	// Output:
	// level: [500 850]
	// param: [Z]
	// number: [1]
}

// ExamplePossibleValues shows that an infeasible selection is a result, not an error.
func ExamplePossibleValues() {
	form := constraints.Form{
		"level": constraints.NewValueSet("500", "850"),
		"param": constraints.NewValueSet("Z", "T"),
	}
	records := []constraints.Record{
		{"level": constraints.NewValueSet("500"), "param": constraints.NewValueSet("Z")},
	}
	selection := constraints.Selection{"level": constraints.NewValueSet("850")}

	values := constraints.PossibleValues(form, selection, records)
	fmt.Println(values["level"].Len(), values["param"].Len())

	// Output:
	// 0 0
}
