// Package constraints narrows dataset request forms.
//
// A dataset publishes a form, the domain of valid values for every request
// parameter, and a list of constraint records, each naming one supported
// combination of values for a subset of parameters. Parameters that no record
// mentions are always valid and combine freely with everything else.
//
// The package normalizes raw catalogue and request inputs into set-valued
// structures, and computes which values stay selectable for every parameter
// given a partial selection:
//
//	form, _ := constraints.ParseForm(widgets)
//	records, _ := constraints.ParseConstraints(raw)
//	selection, _ := constraints.ParseSelection(body)
//	state := constraints.ApplyConstraints(form, selection, records)
//
// Two compatibility rules exist. NarrowingCompatible drives form narrowing and
// only checks selected restricted parameters. GranuleIntersection drives
// granule counting in package costing and requires every parameter of a record
// to be selected. The two are not interchangeable.
//
// All functions are pure and safe for concurrent use.
package constraints
