package costing

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/constrictor/constrictor/pkg/constraints"
)

const (
	// DefaultMaxGranules bounds the number of distinct granules materialized
	// by a safe estimate.
	DefaultMaxGranules int64 = 1_000_000

	// expansionFactor sets the default expansion work bound relative to the
	// granule bound when records overlap.
	expansionFactor = 10

	// cancelCheckInterval is how many granules are expanded between context checks.
	cancelCheckInterval = 4096
)

// Granule is one fully resolved combination of restricted parameter values.
type Granule map[string]string

// Key returns the canonical representation of the granule: its (key, value)
// pairs sorted by key, each token length-prefixed.
func (g Granule) Key() string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = g[k]
	}
	return granuleKey(keys, values)
}

type options struct {
	safe         bool
	maxGranules  int64
	maxExpansion int64
}

// Option configures a granule estimate.
type Option func(*options)

// WithSafe selects between exact deduplicated counting (true, the default) and
// the cheaper additive count that over-counts overlapping records (false).
func WithSafe(safe bool) Option {
	return func(o *options) {
		o.safe = safe
	}
}

// WithMaxGranules bounds the number of distinct granules a safe estimate may
// materialize. Zero or a negative value disables the bound.
func WithMaxGranules(n int64) Option {
	return func(o *options) {
		o.maxGranules = n
	}
}

// WithMaxExpansion bounds the number of combinations a safe estimate may
// expand when records overlap. It defaults to ten times the granule bound.
func WithMaxExpansion(n int64) Option {
	return func(o *options) {
		o.maxExpansion = n
	}
}

func newOptions(opts []Option) options {
	o := options{
		safe:        true,
		maxGranules: DefaultMaxGranules,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxExpansion == 0 && o.maxGranules > 0 {
		o.maxExpansion, _ = constraints.MulChecked(o.maxGranules, expansionFactor)
	}
	return o
}

// EstimateGranules counts the granules a fully specified selection resolves to.
func EstimateGranules(form constraints.Form, selection constraints.Selection, records []constraints.Record, opts ...Option) (int64, error) {
	return EstimateGranulesContext(context.Background(), form, selection, records, opts...)
}

// EstimateGranulesContext is EstimateGranules with cancellation of the
// combination expansion.
//
// Records are intersected with the selected restricted parameters; a record is
// only used when every one of its parameters is selected. The resulting count
// is multiplied by the number of selected always-valid combinations, which is
// never less than one.
func EstimateGranulesContext(ctx context.Context, form constraints.Form, selection constraints.Selection, records []constraints.Record, opts ...Option) (int64, error) {
	o := newOptions(opts)

	alwaysValid := constraints.AlwaysValidParams(form, records)
	multiplier, ok := alwaysValidMultiplier(alwaysValid, selection)
	if !ok {
		return 0, tooLarge("always-valid multiplier overflows", 0, 0)
	}

	selected := make(constraints.Selection, len(selection))
	for k, v := range selection {
		if _, free := alwaysValid[k]; !free {
			selected[k] = v
		}
	}
	found := intersectRecords(records, selected)

	count, err := constrainedCount(ctx, found, o)
	if err != nil {
		return 0, err
	}

	total, ok := constraints.MulChecked(count, multiplier)
	if !ok {
		return 0, tooLarge("granule count overflows", 0, 0)
	}
	return total, nil
}

// EstimateSize scales the granule count by a fixed granule size.
func EstimateSize(form constraints.Form, selection constraints.Selection, records []constraints.Record, granuleSize int64, opts ...Option) (int64, error) {
	granules, err := EstimateGranules(form, selection, records, opts...)
	if err != nil {
		return 0, err
	}
	size, ok := constraints.MulChecked(granules, granuleSize)
	if !ok {
		return 0, tooLarge("size overflows", 0, 0)
	}
	return size, nil
}

// alwaysValidMultiplier is the product of the selected value counts of every
// always-valid parameter, floored at one.
func alwaysValidMultiplier(alwaysValid constraints.Form, selection constraints.Selection) (int64, bool) {
	product := int64(1)
	for name, values := range selection {
		if _, free := alwaysValid[name]; !free {
			continue
		}
		var ok bool
		product, ok = constraints.MulChecked(product, int64(values.Len()))
		if !ok {
			return 0, false
		}
	}
	if product < 1 {
		product = 1
	}
	return product, true
}

// intersectRecords keeps the distinct intersections of records that fully
// match the selection, in record order.
func intersectRecords(records []constraints.Record, selected constraints.Selection) []constraints.Record {
	var found []constraints.Record
	seen := make(map[string]struct{})
	for _, r := range records {
		intersection, ok := constraints.GranuleIntersection(r, selected)
		if !ok {
			continue
		}
		key := intersection.CanonicalKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		found = append(found, intersection)
	}
	return found
}

// constrainedCount counts the granules of the intersected records, exactly in
// safe mode and additively otherwise.
func constrainedCount(ctx context.Context, found []constraints.Record, o options) (int64, error) {
	upper, ok := additiveCount(found)
	if !o.safe {
		if !ok {
			return 0, tooLarge("granule count overflows", 0, 0)
		}
		return upper, nil
	}

	if o.maxGranules <= 0 {
		return distinctCount(ctx, found, 0)
	}
	if ok && upper <= o.maxGranules {
		return distinctCount(ctx, found, 0)
	}

	// Records overlap or the selection is very large: only expand when the
	// total work stays within the expansion bound.
	for _, r := range found {
		n, ok := r.Cardinality()
		if !ok || n > o.maxExpansion {
			return 0, tooLarge("record expansion exceeds bound", o.maxExpansion, n)
		}
	}
	if !ok || upper > o.maxExpansion {
		return 0, tooLarge("combination expansion exceeds bound", o.maxExpansion, upper)
	}
	return distinctCount(ctx, found, o.maxGranules)
}

// additiveCount sums the cardinalities of every record. An empty record counts
// as one. ok is false on overflow.
func additiveCount(found []constraints.Record) (int64, bool) {
	var sum int64
	for _, r := range found {
		n, ok := r.Cardinality()
		if !ok {
			return 0, false
		}
		sum, ok = constraints.AddChecked(sum, n)
		if !ok {
			return 0, false
		}
	}
	return sum, true
}

// distinctCount expands every record and counts distinct granules. A positive
// limit aborts once more than limit granules have been seen.
func distinctCount(ctx context.Context, found []constraints.Record, limit int64) (int64, error) {
	seen := make(map[string]struct{})
	var expanded int64
	var err error

	for _, r := range found {
		expand(r, func(keys, values []string) bool {
			expanded++
			if expanded%cancelCheckInterval == 0 {
				if err = ctx.Err(); err != nil {
					return false
				}
			}
			seen[granuleKey(keys, values)] = struct{}{}
			if limit > 0 && int64(len(seen)) > limit {
				err = tooLarge("distinct granules exceed bound", limit, int64(len(seen)))
				return false
			}
			return true
		})
		if err != nil {
			return 0, err
		}
	}
	return int64(len(seen)), nil
}

// Combinations expands a record into its cartesian product of single-valued
// granules. An empty record has no combinations.
func Combinations(r constraints.Record) []Granule {
	var out []Granule
	expand(r, func(keys, values []string) bool {
		g := make(Granule, len(keys))
		for i, k := range keys {
			g[k] = values[i]
		}
		out = append(out, g)
		return true
	})
	return out
}

// RemoveDuplicates expands every record and returns the distinct granules in
// first-seen order.
func RemoveDuplicates(found []constraints.Record) []Granule {
	var out []Granule
	seen := make(map[string]struct{})
	for _, r := range found {
		expand(r, func(keys, values []string) bool {
			key := granuleKey(keys, values)
			if _, dup := seen[key]; dup {
				return true
			}
			seen[key] = struct{}{}
			g := make(Granule, len(keys))
			for i, k := range keys {
				g[k] = values[i]
			}
			out = append(out, g)
			return true
		})
	}
	return out
}

// expand walks the cartesian product of a record in lexical order, calling fn
// with sorted keys and the current values. fn returns false to stop. The
// slices passed to fn are reused between calls.
func expand(r constraints.Record, fn func(keys, values []string) bool) {
	if len(r) == 0 {
		return
	}
	keys := r.Keys()
	domains := make([][]string, len(keys))
	for i, k := range keys {
		domains[i] = r[k].Sorted()
		if len(domains[i]) == 0 {
			return
		}
	}

	idx := make([]int, len(keys))
	values := make([]string, len(keys))
	for {
		for i := range keys {
			values[i] = domains[i][idx[i]]
		}
		if !fn(keys, values) {
			return
		}

		// odometer increment, last key fastest
		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(domains[i]) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

func granuleKey(keys, values []string) string {
	var b strings.Builder
	for i, k := range keys {
		b.WriteString(strconv.Itoa(len(k)))
		b.WriteByte(':')
		b.WriteString(k)
		b.WriteString(strconv.Itoa(len(values[i])))
		b.WriteByte(':')
		b.WriteString(values[i])
	}
	return b.String()
}
