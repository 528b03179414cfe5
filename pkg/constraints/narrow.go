package constraints

// RestrictedParams returns every parameter named by at least one record.
func RestrictedParams(records []Record) ValueSet {
	keys := make(ValueSet)
	for _, r := range records {
		for k := range r {
			keys.Add(k)
		}
	}
	return keys
}

// AlwaysValidParams returns the form parameters no record restricts, with their
// full domains.
func AlwaysValidParams(form Form, records []Record) Form {
	restricted := RestrictedParams(records)
	out := make(Form)
	for name, domain := range form {
		if !restricted.Has(name) {
			out[name] = domain.Clone()
		}
	}
	return out
}

// PossibleValues returns, for every form parameter, the values that remain
// reachable given a partial selection. Always-valid parameters keep their
// full domain. A restricted parameter receives the union of its values across
// all compatible records, and is empty when nothing is compatible.
func PossibleValues(form Form, selection Selection, records []Record) Form {
	restricted := RestrictedParams(records)
	return possibleValues(form, selection, records, restricted)
}

func possibleValues(form Form, selection Selection, records []Record, restricted ValueSet) Form {
	out := make(Form, len(form))
	for name, domain := range form {
		if restricted.Has(name) {
			out[name] = make(ValueSet)
		} else {
			out[name] = domain.Clone()
		}
	}

	for _, r := range records {
		if !NarrowingCompatible(r, selection, restricted) {
			continue
		}
		for name, values := range r {
			if acc, ok := out[name]; ok {
				acc.Union(values)
			}
		}
	}
	return out
}

// FormState is PossibleValues for an interactive form: parameters present in
// the selection keep their full domain so the field being edited can still
// change. Only form parameters appear in the result.
func FormState(form Form, selection Selection, records []Record) Form {
	out := PossibleValues(form, selection, records)
	for name := range selection {
		if domain, ok := form[name]; ok {
			out[name] = domain.Clone()
		}
	}
	return out
}

// ApplyConstraints runs FormState and renders every domain as a sorted list.
func ApplyConstraints(form Form, selection Selection, records []Record) map[string][]string {
	return FormState(form, selection, records).Sorted()
}
