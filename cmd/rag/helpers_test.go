package main

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/4thel00z/groundrag/internal"
	"go.uber.org/zap"
)

type letterEmbedder struct{}

func (letterEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	if sum > 0 {
		norm := float32(math.Sqrt(sum))
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

func (e letterEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (letterEmbedder) Dimension() int { return 26 }
func (letterEmbedder) Model() string  { return "letters" }
func (letterEmbedder) Close() error   { return nil }

type stubGenerator struct {
	answer string
	err    error
	calls  int
}

func (g *stubGenerator) Generate(context.Context, string, string) (string, error) {
	g.calls++
	return g.answer, g.err
}

// newTestApp wires the letter embedder and the real annoy index. A nil gen
// behaves like a missing credential.
func newTestApp(gen internal.Generator) *app {
	return &app{
		newEmbedder: func(context.Context, internal.EmbeddingsConfig, *zap.Logger) (internal.Embedder, error) {
			return letterEmbedder{}, nil
		},
		newIndex: internal.NewAnnoyFactory(),
		newGenerator: func(context.Context, internal.GenerationConfig) (internal.Generator, error) {
			return gen, nil
		},
	}
}

func runRag(t *testing.T, a *app, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd("test", a)

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
