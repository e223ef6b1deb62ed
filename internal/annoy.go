package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mariotoffia/goannoy/builder"
	"github.com/mariotoffia/goannoy/interfaces"
)

var _ VectorIndex = (*AnnoyIndex)(nil)

// AnnoyIndex stores vectors under their insertion position. Vectors are
// compared by direction; the reported distance sqrt(2-2cos) equals the
// Euclidean distance for the unit-length vectors the embedders produce.
type AnnoyIndex struct {
	mu        sync.RWMutex
	idx       interfaces.AnnoyIndex[float32, uint32]
	dimension int
	count     int
	built     bool
}

func NewAnnoyIndex(dimension int) (*AnnoyIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid index dimension: %d", dimension)
	}

	idx := builder.Index[float32, uint32]().
		AngularDistance(dimension).
		UseMultiWorkerPolicy().
		MmapIndexAllocator().
		Build()

	return &AnnoyIndex{
		idx:       idx,
		dimension: dimension,
	}, nil
}

// NewAnnoyFactory adapts NewAnnoyIndex to an IndexFactory.
func NewAnnoyFactory() IndexFactory {
	return func(dimension int) (VectorIndex, error) {
		return NewAnnoyIndex(dimension)
	}
}

func (a *AnnoyIndex) Add(ctx context.Context, vec []float32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(vec) != a.dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, a.dimension, len(vec))
	}

	a.idx.AddItem(uint32(a.count), vec)
	a.count++
	a.built = false

	return nil
}

func (a *AnnoyIndex) Build(ctx context.Context, numTrees int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if numTrees <= 0 {
		numTrees = DefaultNumTrees
	}

	a.idx.Build(numTrees, -1)
	a.built = true
	return nil
}

func (a *AnnoyIndex) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.built {
		return nil, ErrIndexNotBuilt
	}

	if len(query) != a.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, a.dimension, len(query))
	}

	if k > a.count {
		k = a.count
	}
	if k <= 0 {
		return nil, nil
	}

	searchCtx := a.idx.CreateContext()
	ids, distances := a.idx.GetNnsByVector(query, k, -1, searchCtx)

	neighbors := make([]Neighbor, 0, len(ids))
	for i, id := range ids {
		var dist float32
		if i < len(distances) {
			dist = distances[i]
		}
		neighbors = append(neighbors, Neighbor{Position: int(id), Distance: dist})
	}

	return neighbors, nil
}

func (a *AnnoyIndex) Save(ctx context.Context, path string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.built {
		return ErrIndexNotBuilt
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	if err := a.idx.Save(path); err != nil {
		return fmt.Errorf("save index: %w", err)
	}

	return nil
}

// Load maps a saved index. The artifact does not record its item count, so
// the caller supplies it from the metadata.
func (a *AnnoyIndex) Load(ctx context.Context, path string, items int) error {
	if items < 0 {
		return fmt.Errorf("invalid item count: %d", items)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat index: %w", err)
	}

	if err := a.idx.Load(path); err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	a.count = items
	a.built = true
	return nil
}

func (a *AnnoyIndex) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.count
}

func (a *AnnoyIndex) Dimension() int {
	return a.dimension
}
