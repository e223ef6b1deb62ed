package internal

import "context"

// Neighbor is a raw index hit. Position is the insertion order of the vector
// and may be out of range when the backend pads its result.
type Neighbor struct {
	Position int
	Distance float32
}

type VectorIndex interface {
	Add(ctx context.Context, vec []float32) error
	Build(ctx context.Context, numTrees int) error
	Search(ctx context.Context, query []float32, k int) ([]Neighbor, error)
	Save(ctx context.Context, path string) error
	// Load replaces the index with the saved artifact at path. items is the
	// number of vectors the artifact was built from.
	Load(ctx context.Context, path string, items int) error
	Len() int
	Dimension() int
}

// IndexFactory creates an empty index for vectors of the given dimension.
type IndexFactory func(dimension int) (VectorIndex, error)
