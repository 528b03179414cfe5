// Package catalogue loads, validates and serves dataset definitions.
//
// A dataset definition carries the download form, the constraint records and
// the costing configuration of one dataset. Definitions are written in CUE,
// JSON or YAML:
//
//	id:    "reanalysis-era5-single-levels"
//	form: [{
//	    name: "year"
//	    type: "StringListWidget"
//	    details: values: ["2020", "2021"]
//	}]
//	constraints: [{year: ["2021"]}]
//	costing: units: [{id: "size", kind: "size", limits: {api: 1000}}]
//
// # Components
//
// Loader: parses definition files, checks them against the built-in #Dataset
// CUE schema, then validates struct tags and the relation between form and
// constraints. Problems are reported as Issues with file positions.
//
// SchemaRegistry: holds the compiled CUE schemas.
//
// Registry: the in-memory catalogue served to the estimation engine.
//
// Watcher: reloads a Registry when definition files change. A reload that
// finds errors keeps the previous catalogue.
//
// StarlarkEvaluator: evaluates scripted cost units with a timeout and an
// execution step bound. granules, size and selection are predeclared.
//
// # Usage Example
//
//	loader := catalogue.NewLoader()
//	registry := catalogue.NewRegistry()
//	if _, err := registry.LoadFrom(ctx, loader, []string{"datasets/"}); err != nil {
//	    log.Fatal(err)
//	}
//
//	d, err := registry.GetDataset(ctx, "reanalysis-era5-single-levels")
//	resolved, err := d.Resolve()
package catalogue
