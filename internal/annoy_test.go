package internal

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func TestAnnoyIndexAddAndSearch(t *testing.T) {
	idx, err := NewAnnoyIndex(3)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}

	ctx := context.Background()

	if err := idx.Add(ctx, []float32{1.0, 0.0, 0.0}); err != nil {
		t.Fatalf("add 0: %v", err)
	}
	if err := idx.Add(ctx, []float32{0.0, 1.0, 0.0}); err != nil {
		t.Fatalf("add 1: %v", err)
	}

	if err := idx.Build(ctx, 2); err != nil {
		t.Fatalf("build: %v", err)
	}

	results, err := idx.Search(ctx, []float32{1.0, 0.1, 0.0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if len(results) == 0 {
		t.Fatal("expected at least 1 result")
	}

	if results[0].Position != 0 {
		t.Errorf("expected closest match at position 0, got %d", results[0].Position)
	}
	if len(results) == 2 && results[0].Distance > results[1].Distance {
		t.Errorf("results not ascending by distance: %v", results)
	}
}

func TestAnnoyIndexExactMatchHasZeroDistance(t *testing.T) {
	idx, err := NewAnnoyIndex(2)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}

	ctx := context.Background()
	for _, v := range [][]float32{{0, 0}, {3, 4}, {10, 10}} {
		if err := idx.Add(ctx, v); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := idx.Build(ctx, 4); err != nil {
		t.Fatalf("build: %v", err)
	}

	results, err := idx.Search(ctx, []float32{3, 4}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Position != 1 {
		t.Fatalf("expected position 1, got %v", results)
	}
	if results[0].Distance > 1e-4 {
		t.Errorf("expected ~0 distance, got %v", results[0].Distance)
	}
}

func TestAnnoyIndexKLargerThanCount(t *testing.T) {
	idx, err := NewAnnoyIndex(2)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}

	ctx := context.Background()
	_ = idx.Add(ctx, []float32{1, 0})
	_ = idx.Add(ctx, []float32{0, 1})
	if err := idx.Build(ctx, 2); err != nil {
		t.Fatalf("build: %v", err)
	}

	results, err := idx.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) > 2 {
		t.Errorf("expected at most 2 results, got %d", len(results))
	}
}

func TestAnnoyIndexDimensionMismatch(t *testing.T) {
	idx, err := NewAnnoyIndex(3)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}

	ctx := context.Background()

	err = idx.Add(ctx, []float32{1.0, 0.0})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch error on add, got %v", err)
	}

	// Build so we can test search dimension mismatch
	if err := idx.Build(ctx, 1); err != nil {
		t.Fatalf("build: %v", err)
	}

	_, err = idx.Search(ctx, []float32{1.0, 0.0}, 1)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch error on search, got %v", err)
	}
}

func TestAnnoyIndexSearchBeforeBuild(t *testing.T) {
	idx, err := NewAnnoyIndex(3)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}

	_, err = idx.Search(context.Background(), []float32{1.0, 0.0, 0.0}, 1)
	if !errors.Is(err, ErrIndexNotBuilt) {
		t.Errorf("expected ErrIndexNotBuilt, got %v", err)
	}
}

func TestAnnoyIndexInvalidDimension(t *testing.T) {
	if _, err := NewAnnoyIndex(0); err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestAnnoyIndexSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifacts", "faiss.index")
	ctx := context.Background()

	idx1, err := NewAnnoyIndex(3)
	if err != nil {
		t.Fatalf("new index 1: %v", err)
	}

	if err := idx1.Add(ctx, []float32{0.5, 0.5, 0.0}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := idx1.Add(ctx, []float32{0.0, 0.0, 1.0}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := idx1.Build(ctx, 2); err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := idx1.Save(ctx, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	idx2, err := NewAnnoyIndex(3)
	if err != nil {
		t.Fatalf("new index 2: %v", err)
	}
	if err := idx2.Load(ctx, path, 2); err != nil {
		t.Fatalf("load: %v", err)
	}

	if idx2.Len() != 2 {
		t.Errorf("expected 2 items after load, got %d", idx2.Len())
	}

	results, err := idx2.Search(ctx, []float32{0.0, 0.0, 1.0}, 1)
	if err != nil {
		t.Fatalf("search after load: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Position != 1 {
		t.Errorf("expected position 1, got %d", results[0].Position)
	}
}

func TestAnnoyIndexLoadMissing(t *testing.T) {
	idx, err := NewAnnoyIndex(3)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}

	if err := idx.Load(context.Background(), filepath.Join(t.TempDir(), "absent.index"), 1); err == nil {
		t.Error("expected error loading a missing index")
	}
}

func TestAnnoyIndexSaveBeforeBuild(t *testing.T) {
	idx, err := NewAnnoyIndex(3)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}

	err = idx.Save(context.Background(), filepath.Join(t.TempDir(), "x.index"))
	if !errors.Is(err, ErrIndexNotBuilt) {
		t.Errorf("expected ErrIndexNotBuilt, got %v", err)
	}
}

func TestAnnoyIndexDistanceIsEuclideanForUnitVectors(t *testing.T) {
	idx, err := NewAnnoyIndex(2)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}

	ctx := context.Background()
	_ = idx.Add(ctx, []float32{1, 0})
	_ = idx.Add(ctx, []float32{0, 1})
	if err := idx.Build(ctx, 4); err != nil {
		t.Fatalf("build: %v", err)
	}

	results, err := idx.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %v", results)
	}
	if results[0].Position != 0 || results[0].Distance > 1e-4 {
		t.Errorf("expected exact match first, got %v", results[0])
	}
	if want := float32(math.Sqrt2); math.Abs(float64(results[1].Distance-want)) > 1e-4 {
		t.Errorf("expected distance %v to the orthogonal vector, got %v", want, results[1].Distance)
	}
}

func TestAnnoyIndexLoadNegativeItems(t *testing.T) {
	idx, err := NewAnnoyIndex(3)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}

	if err := idx.Load(context.Background(), filepath.Join(t.TempDir(), "x.index"), -1); err == nil {
		t.Error("expected error for a negative item count")
	}
}
