package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/constrictor/constrictor/pkg/catalogue"
	"github.com/constrictor/constrictor/pkg/constraints"
	"github.com/constrictor/constrictor/pkg/costing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  string
		transient bool
	}{
		{
			name:     "validation",
			err:      &constraints.ValidationError{Source: "form", Field: "year", Index: -1, Message: "bad"},
			wantCode: ErrCodeValidation,
		},
		{
			name:     "estimate too large",
			err:      &costing.EstimateError{Reason: "too many combinations", Limit: 10, Observed: 20, Err: costing.ErrEstimateTooLarge},
			wantCode: ErrCodeEstimateTooLarge,
		},
		{
			name:     "dataset not found",
			err:      fmt.Errorf("lookup era5: %w", catalogue.ErrDatasetNotFound),
			wantCode: ErrCodeNotFound,
		},
		{
			name:      "deadline",
			err:       context.DeadlineExceeded,
			wantCode:  ErrCodeTimeout,
			transient: true,
		},
		{
			name:      "cancelled",
			err:       fmt.Errorf("estimate: %w", context.Canceled),
			wantCode:  ErrCodeTimeout,
			transient: true,
		},
		{
			name:     "unknown",
			err:      errors.New("boom"),
			wantCode: ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err, "estimate", "era5")

			if code := CodeOf(got); code != tt.wantCode {
				t.Errorf("CodeOf() = %q, want %q", code, tt.wantCode)
			}
			if IsTransient(got) != tt.transient {
				t.Errorf("IsTransient() = %v, want %v", IsTransient(got), tt.transient)
			}
			if IsPermanent(got) == tt.transient {
				t.Errorf("IsPermanent() = %v, want %v", IsPermanent(got), !tt.transient)
			}
			if IsRetryable(got) != tt.transient {
				t.Errorf("IsRetryable() = %v, want %v", IsRetryable(got), tt.transient)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classified error does not wrap %v", tt.err)
			}

			var ee *EngineError
			if !errors.As(got, &ee) {
				t.Fatalf("expected *EngineError, got %T", got)
			}
			if ee.Dataset != "era5" || ee.Operation != "estimate" {
				t.Errorf("context = (%q, %q), want (era5, estimate)", ee.Dataset, ee.Operation)
			}
		})
	}
}

func TestClassify_Passthrough(t *testing.T) {
	if classify(nil, "estimate", "era5") != nil {
		t.Error("classify(nil) should be nil")
	}

	orig := NewTransientError("catalogue unavailable", errors.New("db locked")).WithCode(ErrCodeTimeout)
	got := classify(fmt.Errorf("wrapped: %w", orig), "estimate", "era5")

	var ee *EngineError
	if !errors.As(got, &ee) || ee != orig {
		t.Fatalf("expected original EngineError to pass through, got %v", got)
	}
	if ee.Dataset != "" {
		t.Errorf("passthrough should not add dataset context, got %q", ee.Dataset)
	}
}

func TestClassify_Details(t *testing.T) {
	got := classify(&costing.EstimateError{Reason: "overflow", Limit: 5, Err: costing.ErrEstimateTooLarge}, "estimate", "")

	var ee *EngineError
	if !errors.As(got, &ee) {
		t.Fatalf("expected *EngineError, got %T", got)
	}
	if ee.Details["limit"] != int64(5) {
		t.Errorf("Details[limit] = %v, want 5", ee.Details["limit"])
	}
	if !errors.Is(got, costing.ErrEstimateTooLarge) {
		t.Error("expected chain to reach ErrEstimateTooLarge")
	}
}

func TestEngineError_Error(t *testing.T) {
	cause := errors.New("cause")
	tests := []struct {
		name string
		err  *EngineError
		want string
	}{
		{"bare", NewPermanentError("failed", cause), "[permanent] failed: cause"},
		{"dataset", NewPermanentError("failed", cause).WithDataset("era5"), "[permanent] failed (dataset=era5): cause"},
		{
			"dataset and operation",
			NewTransientError("failed", cause).WithDataset("era5").WithOperation("estimate"),
			"[transient] failed (dataset=era5, operation=estimate): cause",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEngineError_Is(t *testing.T) {
	err := NewPermanentError("x", nil).WithCode(ErrCodeNotFound)
	if !errors.Is(err, &EngineError{Class: ErrorClassPermanent, Code: ErrCodeNotFound}) {
		t.Error("expected match on class and code")
	}
	if errors.Is(err, &EngineError{Class: ErrorClassPermanent, Code: ErrCodeInternal}) {
		t.Error("expected mismatch on code")
	}
	if CodeOf(errors.New("plain")) != ErrCodeInternal {
		t.Error("plain errors should report ErrCodeInternal")
	}
}
