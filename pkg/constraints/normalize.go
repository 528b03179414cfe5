package constraints

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
)

// Widget types that contribute values to a form.
const (
	WidgetStringList      = "StringListWidget"
	WidgetStringChoice    = "StringChoiceWidget"
	WidgetStringListArray = "StringListArrayWidget"
)

// Widget is one entry of a dataset form as published by the catalogue.
type Widget struct {
	Name     string        `json:"name" yaml:"name" validate:"required"`
	Type     string        `json:"type" yaml:"type" validate:"required"`
	Label    string        `json:"label,omitempty" yaml:"label,omitempty"`
	Required bool          `json:"required,omitempty" yaml:"required,omitempty"`
	Details  WidgetDetails `json:"details" yaml:"details"`
}

// WidgetDetails holds the declared values of a widget. Values and group values
// may be a scalar or a list.
type WidgetDetails struct {
	Values interface{}   `json:"values,omitempty" yaml:"values,omitempty"`
	Groups []WidgetGroup `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// WidgetGroup is a labelled subset of a StringListArrayWidget's values.
type WidgetGroup struct {
	Label  string      `json:"label,omitempty" yaml:"label,omitempty"`
	Values interface{} `json:"values" yaml:"values"`
}

// ParseForm collapses the value-bearing widgets of a form into a parameter domain.
// StringListWidget and StringChoiceWidget contribute their values,
// StringListArrayWidget contributes the union of its groups, and every other
// widget type is skipped.
func ParseForm(widgets []Widget) (Form, error) {
	form := make(Form, len(widgets))
	for i, w := range widgets {
		switch w.Type {
		case WidgetStringList, WidgetStringChoice:
			values, err := toValueSet(w.Details.Values)
			if err != nil {
				return nil, newValidationError("form", w.Name, i, "%v", err)
			}
			form[w.Name] = values

		case WidgetStringListArray:
			values := make(ValueSet)
			for _, g := range w.Details.Groups {
				gv, err := toValueSet(g.Values)
				if err != nil {
					return nil, newValidationError("form", w.Name, i, "group %q: %v", g.Label, err)
				}
				values.Union(gv)
			}
			form[w.Name] = values
		}
	}
	return form, nil
}

// ParseConstraints converts raw constraint records into set-valued records.
// An empty record stays empty.
func ParseConstraints(raw []map[string]interface{}) ([]Record, error) {
	records := make([]Record, 0, len(raw))
	for i, entry := range raw {
		record := make(Record, len(entry))
		for key, value := range entry {
			values, err := toValueSet(value)
			if err != nil {
				return nil, newValidationError("constraints", key, i, "%v", err)
			}
			record[key] = values
		}
		records = append(records, record)
	}
	return records, nil
}

// ParseSelection converts a raw request selection into a Selection. Scalars
// become singleton sets and lists become sets. Absent keys stay absent.
func ParseSelection(raw map[string]interface{}) (Selection, error) {
	selection := make(Selection, len(raw))
	for key, value := range raw {
		values, err := toValueSet(value)
		if err != nil {
			return nil, newValidationError("selection", key, -1, "%v", err)
		}
		selection[key] = values
	}
	return selection, nil
}

// EnsureList wraps a scalar in a single-element list. Slices and arrays are
// returned unchanged.
func EnsureList(v interface{}) interface{} {
	if isList(v) {
		return v
	}
	return []interface{}{v}
}

func isList(v interface{}) bool {
	if v == nil {
		return false
	}
	switch v.(type) {
	case []interface{}, []string:
		return true
	case string, []byte:
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// toValueSet normalizes a scalar, list or set into a ValueSet.
func toValueSet(v interface{}) (ValueSet, error) {
	switch t := v.(type) {
	case ValueSet:
		return t.Clone(), nil
	case []string:
		return NewValueSet(t...), nil
	case []interface{}:
		out := make(ValueSet, len(t))
		for _, item := range t {
			s, err := toValue(item)
			if err != nil {
				return nil, err
			}
			out.Add(s)
		}
		return out, nil
	}

	if isList(v) {
		rv := reflect.ValueOf(v)
		out := make(ValueSet, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			s, err := toValue(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out.Add(s)
		}
		return out, nil
	}

	s, err := toValue(v)
	if err != nil {
		return nil, err
	}
	return NewValueSet(s), nil
}

// toValue renders a scalar in its canonical textual form.
func toValue(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case json.Number:
		return t.String(), nil
	case nil:
		return "", fmt.Errorf("null value")
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
