package constraints

import (
	"sort"
	"strconv"
	"strings"
)

// ValueSet is an unordered set of parameter values.
type ValueSet map[string]struct{}

// NewValueSet creates a set holding the given values.
func NewValueSet(values ...string) ValueSet {
	s := make(ValueSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Add inserts a value into the set.
func (s ValueSet) Add(v string) {
	s[v] = struct{}{}
}

// Has reports whether v is in the set.
func (s ValueSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Len returns the number of values in the set.
func (s ValueSet) Len() int {
	return len(s)
}

// Clone returns an independent copy of the set. A nil set clones to an empty set.
func (s ValueSet) Clone() ValueSet {
	out := make(ValueSet, len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	return out
}

// Union adds every value of other to s in place.
func (s ValueSet) Union(other ValueSet) {
	for v := range other {
		s[v] = struct{}{}
	}
}

// Intersection returns the values present in both sets.
func (s ValueSet) Intersection(other ValueSet) ValueSet {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(ValueSet)
	for v := range small {
		if large.Has(v) {
			out[v] = struct{}{}
		}
	}
	return out
}

// Intersects reports whether the two sets share at least one value.
func (s ValueSet) Intersects(other ValueSet) bool {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for v := range small {
		if large.Has(v) {
			return true
		}
	}
	return false
}

// Equal reports whether both sets hold exactly the same values.
func (s ValueSet) Equal(other ValueSet) bool {
	if len(s) != len(other) {
		return false
	}
	for v := range s {
		if !other.Has(v) {
			return false
		}
	}
	return true
}

// Sorted returns the values in ascending lexical order. The result is never nil.
func (s ValueSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Form maps every parameter of a dataset to its domain of valid values.
type Form map[string]ValueSet

// Clone returns a deep copy of the form.
func (f Form) Clone() Form {
	out := make(Form, len(f))
	for k, v := range f {
		out[k] = v.Clone()
	}
	return out
}

// Equal reports whether both forms have the same parameters and domains.
func (f Form) Equal(other Form) bool {
	if len(f) != len(other) {
		return false
	}
	for k, v := range f {
		o, ok := other[k]
		if !ok || !v.Equal(o) {
			return false
		}
	}
	return true
}

// Sorted converts every domain into a sorted list, the shape clients receive.
func (f Form) Sorted() map[string][]string {
	out := make(map[string][]string, len(f))
	for k, v := range f {
		out[k] = v.Sorted()
	}
	return out
}

// Selection is the user's current, possibly partial, choice of values per parameter.
// A missing parameter means nothing has been chosen for it yet.
type Selection map[string]ValueSet

// Clone returns a deep copy of the selection.
func (s Selection) Clone() Selection {
	out := make(Selection, len(s))
	for k, v := range s {
		out[k] = v.Clone()
	}
	return out
}

// Record is one constraint: a partial assignment naming a supported combination
// of values. Parameters absent from the record are not restricted by it.
type Record map[string]ValueSet

// Keys returns the record's parameter names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports exact key and value-set equality.
func (r Record) Equal(other Record) bool {
	if len(r) != len(other) {
		return false
	}
	for k, v := range r {
		o, ok := other[k]
		if !ok || !v.Equal(o) {
			return false
		}
	}
	return true
}

// CanonicalKey returns a hashable representation of the record: sorted keys,
// each followed by its sorted values. Two records share a key iff they are Equal.
func (r Record) CanonicalKey() string {
	var b strings.Builder
	for _, k := range r.Keys() {
		writeToken(&b, k)
		vals := r[k].Sorted()
		b.WriteString(strconv.Itoa(len(vals)))
		b.WriteByte('#')
		for _, v := range vals {
			writeToken(&b, v)
		}
	}
	return b.String()
}

// Cardinality returns the number of single-valued combinations the record expands to.
// ok is false when the product overflows int64.
func (r Record) Cardinality() (n int64, ok bool) {
	n = 1
	for _, v := range r {
		n, ok = MulChecked(n, int64(v.Len()))
		if !ok {
			return 0, false
		}
	}
	return n, true
}

// writeToken length-prefixes a string so concatenated tokens stay unambiguous.
func writeToken(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

// MulChecked multiplies two non-negative counts, reporting overflow.
func MulChecked(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	const maxInt64 = int64(^uint64(0) >> 1)
	if a > maxInt64/b {
		return 0, false
	}
	return a * b, true
}

// AddChecked adds two non-negative counts, reporting overflow.
func AddChecked(a, b int64) (int64, bool) {
	const maxInt64 = int64(^uint64(0) >> 1)
	if a > maxInt64-b {
		return 0, false
	}
	return a + b, true
}
