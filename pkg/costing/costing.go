package costing

import (
	"context"
	"fmt"
	"sort"

	"github.com/constrictor/constrictor/pkg/constraints"
)

// Origin identifies where a request comes from. Limits differ per origin.
type Origin string

const (
	// OriginAPI is a programmatic request.
	OriginAPI Origin = "api"

	// OriginUI is a request from the interactive download form.
	OriginUI Origin = "ui"
)

// ParseOrigin converts a string to an Origin. The empty string means api.
func ParseOrigin(s string) (Origin, error) {
	switch Origin(s) {
	case "", OriginAPI:
		return OriginAPI, nil
	case OriginUI:
		return OriginUI, nil
	default:
		return "", fmt.Errorf("unknown request origin %q", s)
	}
}

// UnitKind selects how a cost unit is computed.
type UnitKind string

const (
	// UnitGranules costs the granule count.
	UnitGranules UnitKind = "granules"

	// UnitSize costs granules times the dataset's granule size.
	UnitSize UnitKind = "size"

	// UnitScript costs the result of a Starlark expression.
	UnitScript UnitKind = "script"
)

// CostUnit is one configured cost measure of a dataset.
type CostUnit struct {
	ID     string             `json:"id" yaml:"id" validate:"required"`
	Kind   UnitKind           `json:"kind" yaml:"kind" validate:"required,oneof=granules size script"`
	Script string             `json:"script,omitempty" yaml:"script,omitempty" validate:"required_if=Kind script"`
	Limits map[Origin]float64 `json:"limits,omitempty" yaml:"limits,omitempty" validate:"dive,gte=0"`
	Max    *float64           `json:"max,omitempty" yaml:"max,omitempty" validate:"omitempty,gte=0"`
}

// Config is the costing configuration of a dataset.
type Config struct {
	// GranuleSize is the size of one granule. Zero means 1.
	GranuleSize int64 `json:"granule_size,omitempty" yaml:"granule_size,omitempty" validate:"gte=0"`

	// Units are evaluated in order; the order breaks cost ratio ties.
	Units []CostUnit `json:"units,omitempty" yaml:"units,omitempty" validate:"dive"`

	// CostBarSteps are passed through to clients for rendering.
	CostBarSteps []float64 `json:"cost_bar_steps,omitempty" yaml:"cost_bar_steps,omitempty"`
}

// ScriptEvaluator computes scripted cost units.
type ScriptEvaluator interface {
	EvaluateCost(ctx context.Context, script string, vars map[string]interface{}) (float64, error)
}

// Compute estimates the granules of a selection and evaluates every cost unit
// of cfg for the given origin. eval may be nil when no unit is scripted.
func Compute(ctx context.Context, form constraints.Form, selection constraints.Selection, records []constraints.Record, cfg Config, origin Origin, eval ScriptEvaluator, opts ...Option) (*CostingInfo, error) {
	granules, err := EstimateGranulesContext(ctx, form, selection, records, opts...)
	if err != nil {
		return nil, err
	}

	granuleSize := cfg.GranuleSize
	if granuleSize == 0 {
		granuleSize = 1
	}
	size, ok := constraints.MulChecked(granules, granuleSize)
	if !ok {
		return nil, tooLarge("size overflows", 0, 0)
	}

	info := &CostingInfo{
		Granules:     granules,
		Size:         size,
		Costs:        make(Costs, 0, len(cfg.Units)),
		Limits:       make(Costs, 0, len(cfg.Units)),
		CostBarSteps: cfg.CostBarSteps,
	}
	var maxCosts Costs

	for _, unit := range cfg.Units {
		var value float64
		switch unit.Kind {
		case UnitGranules:
			value = float64(granules)
		case UnitSize:
			value = float64(size)
		case UnitScript:
			if eval == nil {
				return nil, fmt.Errorf("cost unit %s: %w", unit.ID, ErrNoScriptEvaluator)
			}
			vars := map[string]interface{}{
				"granules":  granules,
				"size":      size,
				"selection": selectionVars(selection),
			}
			value, err = eval.EvaluateCost(ctx, unit.Script, vars)
			if err != nil {
				return nil, fmt.Errorf("cost unit %s: %w", unit.ID, err)
			}
		default:
			return nil, fmt.Errorf("cost unit %s: unknown kind %q", unit.ID, unit.Kind)
		}

		info.Costs = append(info.Costs, CostEntry{ID: unit.ID, Value: value})
		if limit, ok := unit.Limits[origin]; ok {
			info.Limits = append(info.Limits, CostEntry{ID: unit.ID, Value: limit})
		}
		if unit.Max != nil {
			maxCosts = append(maxCosts, CostEntry{ID: unit.ID, Value: *unit.Max})
		}
	}

	info.MaxCostsExceeded = MaxCostsExceeded(info.Costs, maxCosts)
	return info, nil
}

func selectionVars(selection constraints.Selection) map[string]interface{} {
	out := make(map[string]interface{}, len(selection))
	for k, v := range selection {
		out[k] = v.Sorted()
	}
	return out
}

// CheckRequestValidity reports why a selection cannot be submitted, or nil.
// A selected value outside its form domain is invalid, and so is a request
// resolving to no granules. The result is a reason for clients, not a failure
// of the estimate.
func CheckRequestValidity(form constraints.Form, selection constraints.Selection, granules int64) error {
	names := make([]string, 0, len(selection))
	for name := range selection {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		domain, ok := form[name]
		if !ok {
			continue
		}
		for _, v := range selection[name].Sorted() {
			if !domain.Has(v) {
				return &constraints.ValidationError{
					Source:  "selection",
					Field:   name,
					Index:   -1,
					Message: fmt.Sprintf("value %q is not valid", v),
				}
			}
		}
	}

	if granules == 0 {
		return &constraints.ValidationError{
			Source:  "selection",
			Index:   -1,
			Message: "the selection does not match any data",
		}
	}
	return nil
}
