package catalogue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a dataset definition file.
type Format string

const (
	FormatCUE  Format = "cue"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath returns the definition format implied by a file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, true
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	default:
		return "", false
	}
}

// Loader parses and validates dataset definition files.
//
// A file holds a single dataset, a list of datasets, or a "datasets" field
// that is either a list or a struct keyed by dataset id.
type Loader struct {
	schemas   *SchemaRegistry
	validator *validator.Validate

	// cue values are built and validated one file at a time
	mu sync.Mutex
}

// NewLoader creates a new loader with the built-in dataset schema.
func NewLoader() *Loader {
	return &Loader{
		schemas:   NewSchemaRegistry(),
		validator: validator.New(),
	}
}

// Schemas returns the loader's schema registry.
func (l *Loader) Schemas() *SchemaRegistry {
	return l.schemas
}

// Load reads dataset definitions from files and directories. Definition
// problems are reported as issues in the result; unreadable sources and
// duplicate dataset ids across sources fail the whole load.
func (l *Loader) Load(ctx context.Context, sources []string) (*LoadResult, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	result := &LoadResult{LoadedAt: time.Now().UTC()}
	seen := make(map[string]string)

	for _, source := range sources {
		files, err := definitionFiles(source)
		if err != nil {
			return nil, err
		}

		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			datasets, issues := l.LoadFile(file)
			result.SourceFiles = append(result.SourceFiles, file)
			result.Issues = append(result.Issues, issues...)
			if hasErrors(issues) {
				continue
			}

			for _, d := range datasets {
				if prev, dup := seen[d.ID]; dup {
					result.Issues = append(result.Issues, Issue{
						File:     file,
						Path:     "id",
						Message:  fmt.Sprintf("dataset %s already defined in %s", d.ID, prev),
						Severity: SeverityError,
					})
					continue
				}
				seen[d.ID] = file
				result.Datasets = append(result.Datasets, d)
			}
		}
	}

	return result, nil
}

// definitionFiles expands a source into the definition files it names.
func definitionFiles(source string) ([]string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
	}

	if !info.IsDir() {
		return []string{source}, nil
	}

	var files []string
	err = filepath.WalkDir(source, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := FormatFromPath(path); ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %s: %w", source, err)
	}

	return files, nil
}

// LoadFile loads the datasets of a single definition file.
func (l *Loader) LoadFile(path string) ([]*Dataset, []Issue) {
	format, ok := FormatFromPath(path)
	if !ok {
		return nil, []Issue{{File: path, Message: "unsupported file type", Severity: SeverityError}}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []Issue{{File: path, Message: fmt.Sprintf("failed to read file: %v", err), Severity: SeverityError}}
	}

	datasets, issues := l.Parse(path, format, data)
	for i := range issues {
		if issues[i].File == "" {
			issues[i].File = path
		}
	}
	for _, d := range datasets {
		d.Source = path
	}
	return datasets, issues
}

// Parse parses definition content in the given format. name labels positions
// in reported issues.
func (l *Loader) Parse(name string, format Format, data []byte) ([]*Dataset, []Issue) {
	l.mu.Lock()
	defer l.mu.Unlock()

	val, issues := l.compile(name, format, data)
	if len(issues) > 0 {
		return nil, issues
	}

	var datasets []*Dataset
	for _, entry := range datasetValues(val) {
		if err := l.schemas.Validate(SchemaDataset, entry.value); err != nil {
			issues = append(issues, convertCUEErrors(err, entry.path)...)
			continue
		}

		d, err := decodeDataset(entry.value)
		if err != nil {
			issues = append(issues, Issue{Path: entry.path, Message: err.Error(), Severity: SeverityError})
			continue
		}

		found := l.Validate(d)
		for i := range found {
			found[i].Path = joinPath(entry.path, found[i].Path)
		}
		issues = append(issues, found...)
		if !hasErrors(found) {
			datasets = append(datasets, d)
		}
	}

	return datasets, issues
}

// compile turns definition content into a cue.Value.
func (l *Loader) compile(name string, format Format, data []byte) (cue.Value, []Issue) {
	ctx := l.schemas.Context()

	switch format {
	case FormatCUE, FormatJSON:
		// JSON is a subset of CUE
		val := ctx.CompileBytes(data, cue.Filename(name))
		if err := val.Err(); err != nil {
			return cue.Value{}, convertCUEErrors(err, "")
		}
		return val, nil

	case FormatYAML:
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return cue.Value{}, []Issue{{Message: fmt.Sprintf("invalid YAML: %v", err), Severity: SeverityError}}
		}
		val := ctx.Encode(doc)
		if err := val.Err(); err != nil {
			return cue.Value{}, convertCUEErrors(err, "")
		}
		return val, nil

	default:
		return cue.Value{}, []Issue{{Message: fmt.Sprintf("unsupported format %q", format), Severity: SeverityError}}
	}
}

type datasetValue struct {
	path  string
	value cue.Value
}

// datasetValues splits a file value into its dataset values.
func datasetValues(val cue.Value) []datasetValue {
	if val.Kind() == cue.ListKind {
		return listValues("", val)
	}

	ds := val.LookupPath(cue.ParsePath("datasets"))
	if !ds.Exists() {
		return []datasetValue{{value: val}}
	}

	if ds.Kind() == cue.ListKind {
		return listValues("datasets", ds)
	}

	var out []datasetValue
	iter, err := ds.Fields()
	if err != nil {
		return []datasetValue{{path: "datasets", value: ds}}
	}
	for iter.Next() {
		label := iter.Selector().Unquoted()
		v := iter.Value()
		if !v.LookupPath(cue.ParsePath("id")).Exists() {
			v = v.FillPath(cue.ParsePath("id"), label)
		}
		out = append(out, datasetValue{path: "datasets." + label, value: v})
	}
	return out
}

func listValues(prefix string, val cue.Value) []datasetValue {
	var out []datasetValue
	list, err := val.List()
	if err != nil {
		return []datasetValue{{path: prefix, value: val}}
	}
	for i := 0; list.Next(); i++ {
		out = append(out, datasetValue{path: fmt.Sprintf("%s[%d]", prefix, i), value: list.Value()})
	}
	return out
}

// decodeDataset decodes a schema-checked value through its JSON form so that
// numbers in constraint and widget values keep their textual representation.
func decodeDataset(val cue.Value) (*Dataset, error) {
	data, err := val.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export dataset: %w", err)
	}
	return DecodeJSON(data)
}

// DecodeJSON decodes a JSON dataset definition without validating it.
func DecodeJSON(data []byte) (*Dataset, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var d Dataset
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	return &d, nil
}

// convertCUEErrors converts CUE errors to issues.
func convertCUEErrors(err error, path string) []Issue {
	var issues []Issue

	for _, e := range errors.Errors(err) {
		issue := Issue{
			Path:     joinPath(path, strings.Join(e.Path(), ".")),
			Message:  errors.Details(e, nil),
			Severity: SeverityError,
		}
		if pos := errors.Positions(e); len(pos) > 0 {
			issue.File = pos[0].Filename()
			issue.Line = pos[0].Line()
			issue.Column = pos[0].Column()
		}
		issues = append(issues, issue)
	}

	return issues
}

func joinPath(prefix, path string) string {
	switch {
	case prefix == "":
		return path
	case path == "":
		return prefix
	case strings.HasPrefix(path, "["):
		return prefix + path
	default:
		return prefix + "." + path
	}
}
