package internal

import "context"

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
	Close() error
}

// Generator turns a system/user prompt pair into an answer.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}
