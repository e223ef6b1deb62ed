package internal

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
)

// letterEmbedder maps text to its normalised a-z letter histogram, so equal
// texts embed identically and similar texts land close together.
type letterEmbedder struct {
	batches atomic.Int32
	fail    error
}

func (e *letterEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	vec := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	return l2Normalize(vec), nil
}

func (e *letterEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batches.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func staticEmbedder(e Embedder) func(context.Context) (Embedder, error) {
	return func(context.Context) (Embedder, error) { return e, nil }
}

func (e *letterEmbedder) Dimension() int { return 26 }
func (e *letterEmbedder) Model() string  { return "letters" }
func (e *letterEmbedder) Close() error   { return nil }

// flatIndex is an exact in-memory index persisted as JSON.
type flatIndex struct {
	dim     int
	vectors [][]float32
	built   bool
	// pad is appended to every search result to simulate a backend that
	// returns invalid or repeated positions.
	pad []Neighbor
}

func newFlatFactory(pad ...Neighbor) IndexFactory {
	return func(dim int) (VectorIndex, error) {
		return &flatIndex{dim: dim, pad: pad}, nil
	}
}

func (f *flatIndex) Add(ctx context.Context, vec []float32) error {
	if len(vec) != f.dim {
		return ErrDimensionMismatch
	}
	f.vectors = append(f.vectors, vec)
	return nil
}

func (f *flatIndex) Build(ctx context.Context, numTrees int) error {
	f.built = true
	return nil
}

func (f *flatIndex) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	if !f.built {
		return nil, ErrIndexNotBuilt
	}
	all := make([]Neighbor, len(f.vectors))
	for i, v := range f.vectors {
		var sum float64
		for j := range v {
			d := float64(v[j] - query[j])
			sum += d * d
		}
		all[i] = Neighbor{Position: i, Distance: float32(math.Sqrt(sum))}
	}
	slices.SortStableFunc(all, func(a, b Neighbor) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	if k < len(all) {
		all = all[:k]
	}
	return append(all, f.pad...), nil
}

func (f *flatIndex) Save(ctx context.Context, path string) error {
	if !f.built {
		return ErrIndexNotBuilt
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(f.vectors)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (f *flatIndex) Load(ctx context.Context, path string, items int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &f.vectors); err != nil {
		return err
	}
	f.built = true
	return nil
}

func (f *flatIndex) Len() int       { return len(f.vectors) }
func (f *flatIndex) Dimension() int { return f.dim }

// fakeGenerator records its calls and returns a canned answer or error.
type fakeGenerator struct {
	answer string
	err    error
	calls  int
	system string
	user   string
}

func (g *fakeGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	g.calls++
	g.system, g.user = system, user
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

var errFakeTransport = errors.New("connection reset")
