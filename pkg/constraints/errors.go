package constraints

import "fmt"

// ValidationError reports malformed form, constraint or selection input.
// It is never recovered locally; callers translate it into a client error.
type ValidationError struct {
	// Source names the input being parsed (form, constraints, selection).
	Source string `json:"source"`

	// Field is the parameter name involved, if any.
	Field string `json:"field,omitempty"`

	// Index is the position of the offending entry in a list input, or -1.
	Index int `json:"index"`

	// Message describes the problem.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	switch {
	case e.Field != "" && e.Index >= 0:
		return fmt.Sprintf("invalid %s[%d].%s: %s", e.Source, e.Index, e.Field, e.Message)
	case e.Field != "":
		return fmt.Sprintf("invalid %s.%s: %s", e.Source, e.Field, e.Message)
	case e.Index >= 0:
		return fmt.Sprintf("invalid %s[%d]: %s", e.Source, e.Index, e.Message)
	default:
		return fmt.Sprintf("invalid %s: %s", e.Source, e.Message)
	}
}

func newValidationError(source, field string, index int, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Source:  source,
		Field:   field,
		Index:   index,
		Message: fmt.Sprintf(format, args...),
	}
}
