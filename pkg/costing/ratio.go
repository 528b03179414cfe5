package costing

import "math"

// CostEntry is one named cost or limit value.
type CostEntry struct {
	ID    string  `json:"id" yaml:"id"`
	Value float64 `json:"value" yaml:"value"`
}

// Costs is an ordered list of named values. Order is significant: it breaks
// ties when selecting the highest cost/limit ratio.
type Costs []CostEntry

// Get returns the value for id.
func (c Costs) Get(id string) (float64, bool) {
	for _, e := range c {
		if e.ID == id {
			return e.Value, true
		}
	}
	return 0, false
}

// Set replaces the value for id, or appends it when absent.
func (c *Costs) Set(id string, value float64) {
	for i := range *c {
		if (*c)[i].ID == id {
			(*c)[i].Value = value
			return
		}
	}
	*c = append(*c, CostEntry{ID: id, Value: value})
}

// Map returns the values keyed by id.
func (c Costs) Map() map[string]float64 {
	out := make(map[string]float64, len(c))
	for _, e := range c {
		out[e.ID] = e.Value
	}
	return out
}

// ExceededCost reports a cost above its hard maximum.
type ExceededCost struct {
	ID   string  `json:"id" yaml:"id"`
	Cost float64 `json:"cost" yaml:"cost"`
	Max  float64 `json:"max" yaml:"max"`
}

// CostingInfo is the full cost picture of a request.
type CostingInfo struct {
	Granules         int64          `json:"granules" yaml:"granules"`
	Size             int64          `json:"size" yaml:"size"`
	Costs            Costs          `json:"costs" yaml:"costs"`
	Limits           Costs          `json:"limits" yaml:"limits"`
	MaxCostsExceeded []ExceededCost `json:"max_costs_exceeded,omitempty" yaml:"max_costs_exceeded,omitempty"`
	CostBarSteps     []float64      `json:"cost_bar_steps,omitempty" yaml:"cost_bar_steps,omitempty"`
}

// RequestCost is the cost with the highest cost/limit ratio, as shown to clients.
type RequestCost struct {
	ID             string    `json:"id" yaml:"id"`
	Cost           float64   `json:"cost" yaml:"cost"`
	Limit          float64   `json:"limit" yaml:"limit"`
	CostBarSteps   []float64 `json:"cost_bar_steps,omitempty" yaml:"cost_bar_steps,omitempty"`
	RequestIsValid bool      `json:"request_is_valid" yaml:"request_is_valid"`
	InvalidReason  string    `json:"invalid_reason,omitempty" yaml:"invalid_reason,omitempty"`
}

// Ratio returns cost/limit, with a zero limit giving +Inf for a positive cost.
func (rc RequestCost) Ratio() float64 {
	return costLimitRatio(rc.Cost, rc.Limit)
}

func costLimitRatio(cost, limit float64) float64 {
	if limit > 0 {
		return cost / limit
	}
	if cost > 0 {
		return math.Inf(1)
	}
	return 0
}

// HighestCostLimitRatio selects the limited cost with the strictly highest
// cost/limit ratio. Limits are visited in order and the first one wins ties.
// A limited id with no cost counts as zero. With no limits the id is empty.
// The result is marked valid; callers clear it after CheckRequestValidity.
func HighestCostLimitRatio(info CostingInfo) RequestCost {
	var best RequestCost
	bestRatio := math.Inf(-1)

	for _, limit := range info.Limits {
		cost, _ := info.Costs.Get(limit.ID)
		ratio := costLimitRatio(cost, limit.Value)
		if ratio > bestRatio {
			bestRatio = ratio
			best = RequestCost{ID: limit.ID, Cost: cost, Limit: limit.Value}
		}
	}

	best.RequestIsValid = true
	best.CostBarSteps = info.CostBarSteps
	return best
}

// MaxCostsExceeded returns the costs strictly above their hard maximum, in cost order.
func MaxCostsExceeded(costs, maxCosts Costs) []ExceededCost {
	var out []ExceededCost
	for _, c := range costs {
		ceiling, ok := maxCosts.Get(c.ID)
		if ok && c.Value > ceiling {
			out = append(out, ExceededCost{ID: c.ID, Cost: c.Value, Max: ceiling})
		}
	}
	return out
}
