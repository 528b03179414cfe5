package catalogue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/constrictor/constrictor/pkg/constraints"
	"github.com/constrictor/constrictor/pkg/costing"
)

// ErrDatasetNotFound is returned when a dataset id is not in the catalogue.
var ErrDatasetNotFound = errors.New("dataset not found")

// Dataset is a dataset definition as published by the catalogue.
type Dataset struct {
	// ID is the unique dataset identifier (e.g., "reanalysis-era5-single-levels").
	ID string `json:"id" yaml:"id" validate:"required"`

	// Title is the human-readable name.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Form lists the widgets of the download form.
	Form []constraints.Widget `json:"form" yaml:"form" validate:"dive"`

	// Constraints lists the valid combinations of parameter values.
	Constraints []map[string]interface{} `json:"constraints,omitempty" yaml:"constraints,omitempty"`

	// Costing configures the cost units and limits of the dataset.
	Costing costing.Config `json:"costing,omitempty" yaml:"costing,omitempty"`

	// Source is the file the definition was loaded from.
	Source string `json:"-" yaml:"-"`
}

// Resolved is a dataset with its form and constraints in normalized form.
type Resolved struct {
	Dataset *Dataset
	Form    constraints.Form
	Records []constraints.Record
}

// Resolve normalizes the form and constraints of the dataset.
func (d *Dataset) Resolve() (*Resolved, error) {
	form, err := constraints.ParseForm(d.Form)
	if err != nil {
		return nil, err
	}
	records, err := constraints.ParseConstraints(d.Constraints)
	if err != nil {
		return nil, err
	}
	return &Resolved{Dataset: d, Form: form, Records: records}, nil
}

// Issue is a problem found while loading a dataset definition.
type Issue struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path locates the problem inside the definition (e.g., "constraints[2].param").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the issue severity (error, warning).
	Severity string `json:"severity" validate:"required,oneof=error warning"`
}

// Severity levels of an Issue.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

func (i Issue) String() string {
	var b strings.Builder
	if i.File != "" {
		b.WriteString(i.File)
		if i.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", i.Line, i.Column)
		}
		b.WriteString(": ")
	}
	if i.Path != "" {
		b.WriteString(i.Path)
		b.WriteString(": ")
	}
	b.WriteString(i.Message)
	return b.String()
}

// LoadError collects the error issues of a failed load.
type LoadError struct {
	Issues []Issue
}

func (e *LoadError) Error() string {
	if len(e.Issues) == 1 {
		return "invalid dataset definition: " + e.Issues[0].String()
	}
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.String()
	}
	return fmt.Sprintf("invalid dataset definition: %d issues: %s", len(e.Issues), strings.Join(msgs, "; "))
}

// hasErrors reports whether any issue has error severity.
func hasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// LoadResult is the outcome of loading one or more definition sources.
type LoadResult struct {
	// Datasets are the definitions that loaded cleanly.
	Datasets []*Dataset `json:"datasets"`

	// SourceFiles are the files that were read.
	SourceFiles []string `json:"source_files"`

	// LoadedAt is when the sources were read.
	LoadedAt time.Time `json:"loaded_at"`

	// Issues lists every problem found, including warnings.
	Issues []Issue `json:"issues,omitempty"`
}

// Err returns a *LoadError when the result holds error issues.
func (r *LoadResult) Err() error {
	var errs []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			errs = append(errs, i)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &LoadError{Issues: errs}
}
