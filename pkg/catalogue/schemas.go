package catalogue

import (
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages the CUE schemas dataset definitions are checked against.
// Schemas and the values validated against them share one cue.Context.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with the built-in dataset schema.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema(SchemaDataset, "#Dataset", builtinDatasetSchema); err != nil {
		panic(err)
	}

	return sr
}

// SchemaDataset is the name of the built-in dataset schema.
const SchemaDataset = "dataset"

// RegisterSchema compiles source and registers the definition it declares under name.
func (sr *SchemaRegistry) RegisterSchema(name, definition, source string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema %s does not declare %s", name, definition)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Validate unifies val with the named schema and requires a concrete result.
func (sr *SchemaRegistry) Validate(schemaName string, val cue.Value) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	unified := schema.Unify(val)
	return unified.Validate(cue.Concrete(true))
}

// ListSchemas returns all registered schema names in sorted order.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Context returns the cue.Context shared by the registry's schemas.
func (sr *SchemaRegistry) Context() *cue.Context {
	return sr.ctx
}

const builtinDatasetSchema = `
#Scalar: string | number | bool
#Values: #Scalar | [...#Scalar]

// Widget is one entry of a download form. Widgets carry many presentation
// fields, so the definition stays open.
#Widget: {
	name:      string & !=""
	type:      string & !=""
	label?:    string
	required?: bool
	details?: {
		values?: #Values
		groups?: [...{
			label?: string
			values: #Values
			...
		}]
		...
	}
	...
}

#CostUnit: {
	id:      string & !=""
	kind:    "granules" | "size" | "script"
	script?: string
	limits?: {
		api?: number & >=0
		ui?:  number & >=0
	}
	max?: number & >=0
	if kind == "script" {
		script: string & !=""
	}
}

#Costing: {
	granule_size?: int & >=0
	units?: [...#CostUnit]
	cost_bar_steps?: [...number]
}

#Dataset: {
	id:     string & =~"^[a-zA-Z0-9._-]+$"
	title?: string
	form: [...#Widget]
	constraints?: [...{[string]: #Values}]
	costing?: #Costing
}
`
