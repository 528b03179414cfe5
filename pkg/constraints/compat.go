package constraints

// NarrowingCompatible reports whether a record can still be reached from a
// partial selection. Only selected parameters that some record restricts are
// checked: each must be a key of the record and share at least one value with
// it. A record that omits a checked parameter is incompatible. An empty
// selection is compatible with every record.
func NarrowingCompatible(record Record, selection Selection, restricted ValueSet) bool {
	for key, selected := range selection {
		if !restricted.Has(key) {
			continue
		}
		allowed, ok := record[key]
		if !ok || !allowed.Intersects(selected) {
			return false
		}
	}
	return true
}

// GranuleIntersection intersects a record with a fully specified selection.
// Every key of the record must be selected and overlap the selection; if any
// key fails, ok is false. Selected parameters the record does not mention are
// ignored. The returned record holds the overlapping values per key.
func GranuleIntersection(record Record, selection Selection) (intersection Record, ok bool) {
	intersection = make(Record, len(record))
	for key, allowed := range record {
		selected, found := selection[key]
		if !found {
			return nil, false
		}
		common := allowed.Intersection(selected)
		if common.Len() == 0 {
			return nil, false
		}
		intersection[key] = common
	}
	return intersection, true
}
