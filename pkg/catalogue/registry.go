package catalogue

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry is an in-memory catalogue of dataset definitions.
type Registry struct {
	mu       sync.RWMutex
	datasets map[string]*Dataset
}

// NewRegistry creates a registry holding the given datasets.
func NewRegistry(datasets ...*Dataset) *Registry {
	r := &Registry{datasets: make(map[string]*Dataset, len(datasets))}
	for _, d := range datasets {
		r.datasets[d.ID] = d
	}
	return r
}

// GetDataset returns the dataset with the given id.
func (r *Registry) GetDataset(ctx context.Context, id string) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.datasets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	return d, nil
}

// Put adds or replaces a dataset.
func (r *Registry) Put(d *Dataset) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.datasets[d.ID] = d
}

// Delete removes a dataset and reports whether it was present.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.datasets[id]
	delete(r.datasets, id)
	return ok
}

// Replace swaps the whole catalogue for datasets.
func (r *Registry) Replace(datasets []*Dataset) {
	next := make(map[string]*Dataset, len(datasets))
	for _, d := range datasets {
		next[d.ID] = d
	}

	r.mu.Lock()
	r.datasets = next
	r.mu.Unlock()
}

// List returns all datasets sorted by id.
func (r *Registry) List() []*Dataset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Dataset, 0, len(r.datasets))
	for _, d := range r.datasets {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of datasets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.datasets)
}

// LoadFrom loads sources with loader and replaces the catalogue with the
// result. On any error issue the catalogue is left untouched.
func (r *Registry) LoadFrom(ctx context.Context, loader *Loader, sources []string) (*LoadResult, error) {
	result, err := loader.Load(ctx, sources)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return result, err
	}

	r.Replace(result.Datasets)
	return result, nil
}
