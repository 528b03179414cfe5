package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/constrictor/constrictor/pkg/catalogue"
	"github.com/constrictor/constrictor/pkg/constraints"
	"github.com/constrictor/constrictor/pkg/costing"
)

// ErrorClass represents the classification of an error for callers deciding
// whether to retry.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: catalogue storage unavailable, cancelled request.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates rate limiting or quota exhaustion.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassConflict indicates a catalogue state conflict.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Estimates are deterministic, so every failure of the computation itself
	// is permanent.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an error code for programmatic handling and client mapping.
	Code string `json:"code,omitempty"`

	// Dataset is the dataset the request targeted, if known.
	Dataset string `json:"dataset,omitempty"`

	// Operation is the engine operation that failed.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Dataset != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (dataset=%s, operation=%s): %s",
			e.Class, e.Message, e.Dataset, e.Operation, e.unwrapMessage())
	}
	if e.Dataset != "" {
		return fmt.Sprintf("[%s] %s (dataset=%s): %s",
			e.Class, e.Message, e.Dataset, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// WithDataset adds dataset context to an error.
func (e *EngineError) WithDataset(datasetID string) *EngineError {
	e.Dataset = datasetID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable returns true if the error can be retried.
// Transient, throttled, and conflict errors are retryable.
func IsRetryable(err error) bool {
	var e *EngineError
	if !errors.As(err, &e) {
		return false
	}
	return e.Class == ErrorClassTransient || e.Class == ErrorClassThrottled || e.Class == ErrorClassConflict
}

// CodeOf returns the code of a classified error, or ErrCodeInternal.
func CodeOf(err error) string {
	var e *EngineError
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return ErrCodeInternal
}

// Error codes.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeEstimateTooLarge  = "ESTIMATE_TOO_LARGE"
	ErrCodeCostLimitExceeded = "COST_LIMIT_EXCEEDED"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// classify wraps an error from the constraint, costing or catalogue layers
// into an EngineError with the matching code. EngineErrors pass through.
func classify(err error, operation, datasetID string) error {
	if err == nil {
		return nil
	}

	var ee *EngineError
	if errors.As(err, &ee) {
		return err
	}

	var verr *constraints.ValidationError
	var eerr *costing.EstimateError

	switch {
	case errors.As(err, &verr):
		return NewPermanentError("invalid request", err).
			WithCode(ErrCodeValidation).
			WithOperation(operation).
			WithDataset(datasetID).
			WithDetail("source", verr.Source).
			WithDetail("field", verr.Field)

	case errors.As(err, &eerr):
		return NewPermanentError("estimate too large", err).
			WithCode(ErrCodeEstimateTooLarge).
			WithOperation(operation).
			WithDataset(datasetID).
			WithDetail("limit", eerr.Limit)

	case errors.Is(err, catalogue.ErrDatasetNotFound):
		return NewPermanentError("dataset not found", err).
			WithCode(ErrCodeNotFound).
			WithOperation(operation).
			WithDataset(datasetID)

	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return NewTransientError("estimate interrupted", err).
			WithCode(ErrCodeTimeout).
			WithOperation(operation).
			WithDataset(datasetID)

	default:
		return NewPermanentError("estimate failed", err).
			WithCode(ErrCodeInternal).
			WithOperation(operation).
			WithDataset(datasetID)
	}
}
