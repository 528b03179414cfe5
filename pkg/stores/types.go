package stores

import (
	"context"
	"errors"
	"time"

	"github.com/constrictor/constrictor/pkg/catalogue"
)

// ErrEstimateNotFound is returned when an estimate id is unknown.
var ErrEstimateNotFound = errors.New("estimate not found")

// DatasetRecord is a stored dataset definition.
type DatasetRecord struct {
	ID         string    `json:"id" yaml:"id"`
	Title      string    `json:"title" yaml:"title"`
	Definition string    `json:"definition" yaml:"definition"` // JSON blob
	Checksum   string    `json:"checksum" yaml:"checksum"`     // sha256 of Definition
	Source     string    `json:"source" yaml:"source"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`
}

// EstimateRecord is one audited estimate.
type EstimateRecord struct {
	ID        string    `json:"id" yaml:"id"`
	DatasetID string    `json:"dataset_id" yaml:"dataset_id"`
	Origin    string    `json:"origin" yaml:"origin"`
	Granules  int64     `json:"granules" yaml:"granules"`
	CostID    string    `json:"cost_id" yaml:"cost_id"`
	Cost      float64   `json:"cost" yaml:"cost"`
	CostLimit float64   `json:"cost_limit" yaml:"cost_limit"`
	Allowed   bool      `json:"allowed" yaml:"allowed"`
	Reason    string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Request   string    `json:"request" yaml:"request"` // JSON blob
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// EstimateFilter narrows ListEstimates. Nil fields match everything.
type EstimateFilter struct {
	DatasetID *string
	Allowed   *bool
	Limit     int
	Offset    int
}

// Store is the persistence interface of the catalogue service.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
	HealthCheck(ctx context.Context) error

	// Datasets
	UpsertDataset(ctx context.Context, d *catalogue.Dataset) (*DatasetRecord, error)
	GetDataset(ctx context.Context, id string) (*catalogue.Dataset, error)
	GetDatasetRecord(ctx context.Context, id string) (*DatasetRecord, error)
	ListDatasets(ctx context.Context, limit, offset int) ([]*DatasetRecord, error)
	DeleteDataset(ctx context.Context, id string) error

	// Estimates
	RecordEstimate(ctx context.Context, e *EstimateRecord) error
	GetEstimate(ctx context.Context, id string) (*EstimateRecord, error)
	ListEstimates(ctx context.Context, filter EstimateFilter) ([]*EstimateRecord, error)
}
