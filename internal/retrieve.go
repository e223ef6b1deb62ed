package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"
)

type RetrieverInput struct {
	IndexPath string
	MetaPath  string
}

// Retriever answers nearest-chunk queries against one loaded pair of
// artifacts. It is read-only after OpenRetriever returns.
type Retriever struct {
	embedder Embedder
	index    VectorIndex
	chunks   []Chunk
	logger   *zap.Logger
}

// CheckArtifacts returns ErrNotIngested unless both artifacts exist.
func CheckArtifacts(input RetrieverInput) error {
	for _, path := range []string{input.IndexPath, input.MetaPath} {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s missing", ErrNotIngested, path)
		} else if err != nil {
			return fmt.Errorf("stat artifact: %w", err)
		}
	}
	return nil
}

// OpenRetriever loads the index and metadata artifacts under a shared lock.
func OpenRetriever(ctx context.Context, input RetrieverInput, embedder Embedder, newIndex IndexFactory, logger *zap.Logger) (*Retriever, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := CheckArtifacts(input); err != nil {
		return nil, err
	}

	unlock, err := LockArtifacts(ctx, input.IndexPath, false, DefaultLockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	chunks, err := LoadMetadata(input.MetaPath)
	if err != nil {
		return nil, err
	}

	index, err := newIndex(embedder.Dimension())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	if err := index.Load(ctx, input.IndexPath, len(chunks)); err != nil {
		return nil, err
	}

	if index.Len() != len(chunks) {
		logger.Warn("index and metadata sizes differ; run ingest again",
			zap.Int("vectors", index.Len()),
			zap.Int("chunks", len(chunks)),
		)
	}

	return &Retriever{
		embedder: embedder,
		index:    index,
		chunks:   chunks,
		logger:   logger,
	}, nil
}

// Search embeds query and returns at most k chunks, nearest first. Index
// positions with no metadata record and repeated positions are dropped.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]RetrievalResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidTopK, k)
	}

	start := time.Now()
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	neighbors, err := r.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	seen := make(map[int]struct{}, len(neighbors))
	results := make([]RetrievalResult, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Position < 0 || n.Position >= len(r.chunks) {
			continue
		}
		if _, dup := seen[n.Position]; dup {
			continue
		}
		seen[n.Position] = struct{}{}
		results = append(results, RetrievalResult{Chunk: r.chunks[n.Position], Distance: n.Distance})
		if len(results) == k {
			break
		}
	}

	r.logger.Debug("retrieved",
		zap.Int("k", k),
		zap.Int("results", len(results)),
		zap.Duration("took", time.Since(start)),
	)
	return results, nil
}

// Len is the number of chunks in the metadata artifact.
func (r *Retriever) Len() int {
	return len(r.chunks)
}
