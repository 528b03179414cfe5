package engine

import (
	"context"

	"github.com/constrictor/constrictor/pkg/catalogue"
	"github.com/constrictor/constrictor/pkg/policy"
)

// Catalogue looks up dataset definitions.
// Implemented by catalogue.Registry and stores.SQLiteStore.
type Catalogue interface {
	// GetDataset returns the dataset with the given id. A missing dataset is
	// reported with an error wrapping catalogue.ErrDatasetNotFound.
	GetDataset(ctx context.Context, id string) (*catalogue.Dataset, error)
}

// PolicyEvaluator decides whether a costed request may be submitted.
// Implemented by policy.Engine.
type PolicyEvaluator interface {
	// EvaluateEstimate evaluates the admission policies against one estimate.
	EvaluateEstimate(ctx context.Context, input *policy.EstimateInput) (*policy.Result, error)
}
