package v1

import (
	"context"

	"github.com/4thel00z/groundrag/internal"
)

// Embedder maps text to fixed-length vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
	Close() error
}

// Generator answers a system/user prompt pair.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

var (
	ErrNotIngested   = internal.ErrNotIngested
	ErrNoDocuments   = internal.ErrNoDocuments
	ErrArtifactsBusy = internal.ErrArtifactsBusy
	ErrInvalidTopK   = internal.ErrInvalidTopK
)

// IngestResult summarises one ingestion run.
type IngestResult struct {
	Files     int    `json:"files"`
	Skipped   int    `json:"skipped"`
	Chunks    int    `json:"chunks"`
	Dimension int    `json:"dimension"`
	IndexPath string `json:"index_path"`
	MetaPath  string `json:"meta_path"`
}

// SearchResult is one retrieved chunk, nearest first.
type SearchResult struct {
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Distance   float32 `json:"distance"`
}

// Answer is the outcome of Ask. Refused answers carry the refusal message in
// Text. A failed generation leaves Text empty and sets Err.
type Answer struct {
	Results []SearchResult `json:"results"`
	Refused bool           `json:"refused"`
	Text    string         `json:"text,omitempty"`
	Err     error          `json:"-"`
}
