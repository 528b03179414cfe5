package catalogue

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks a decoded dataset: struct tags first, then the relation
// between form and constraints. Every constraint parameter must be a form
// parameter and every constraint value must be in that parameter's domain.
func (l *Loader) Validate(d *Dataset) []Issue {
	var issues []Issue

	if err := l.validator.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				issues = append(issues, Issue{
					Path:     fe.Namespace(),
					Message:  fmt.Sprintf("failed %q validation", fe.Tag()),
					Severity: SeverityError,
				})
			}
		} else {
			issues = append(issues, Issue{Message: err.Error(), Severity: SeverityError})
		}
		return issues
	}

	widgets := make(map[string]int, len(d.Form))
	for i, w := range d.Form {
		if prev, dup := widgets[w.Name]; dup {
			issues = append(issues, Issue{
				Path:     fmt.Sprintf("form[%d].name", i),
				Message:  fmt.Sprintf("widget %s already declared at form[%d]", w.Name, prev),
				Severity: SeverityError,
			})
			continue
		}
		widgets[w.Name] = i
	}

	resolved, err := d.Resolve()
	if err != nil {
		issues = append(issues, Issue{Message: err.Error(), Severity: SeverityError})
		return issues
	}

	for i, w := range d.Form {
		if domain, ok := resolved.Form[w.Name]; ok && domain.Len() == 0 {
			issues = append(issues, Issue{
				Path:     fmt.Sprintf("form[%d]", i),
				Message:  fmt.Sprintf("widget %s declares no values", w.Name),
				Severity: SeverityWarning,
			})
		}
	}

	for i, record := range resolved.Records {
		for _, key := range record.Keys() {
			domain, ok := resolved.Form[key]
			if !ok {
				issues = append(issues, Issue{
					Path:     fmt.Sprintf("constraints[%d].%s", i, key),
					Message:  fmt.Sprintf("parameter %s is not in the form", key),
					Severity: SeverityError,
				})
				continue
			}
			for _, v := range record[key].Sorted() {
				if !domain.Has(v) {
					issues = append(issues, Issue{
						Path:     fmt.Sprintf("constraints[%d].%s", i, key),
						Message:  fmt.Sprintf("value %q is not in the domain of %s", v, key),
						Severity: SeverityError,
					})
				}
			}
		}
	}

	units := make(map[string]bool, len(d.Costing.Units))
	for i, u := range d.Costing.Units {
		if units[u.ID] {
			issues = append(issues, Issue{
				Path:     fmt.Sprintf("costing.units[%d].id", i),
				Message:  fmt.Sprintf("cost unit %s already declared", u.ID),
				Severity: SeverityError,
			})
		}
		units[u.ID] = true
	}

	return issues
}

// ValidateDataset validates d with a fresh validator. It is a convenience for
// callers that decode definitions themselves, such as stores.
func ValidateDataset(d *Dataset) error {
	l := &Loader{validator: validator.New()}
	result := &LoadResult{Issues: l.Validate(d)}
	return result.Err()
}
