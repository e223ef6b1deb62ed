package main

import (
	"context"
	"fmt"
	"os"

	"github.com/4thel00z/groundrag/internal"
	"github.com/charmbracelet/fang"
	"go.uber.org/zap"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	ctx := context.Background()

	if err := internal.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "rag: %v\n", err)
	}

	rootCmd := NewRootCmd(version, newApp())
	if err := fang.Execute(ctx, rootCmd); err != nil {
		os.Exit(1)
	}
}

// app holds the constructors the commands use for their collaborators.
type app struct {
	newEmbedder  func(context.Context, internal.EmbeddingsConfig, *zap.Logger) (internal.Embedder, error)
	newIndex     internal.IndexFactory
	newGenerator func(context.Context, internal.GenerationConfig) (internal.Generator, error)
}

func newApp() *app {
	return &app{
		newEmbedder:  internal.NewEmbedder,
		newIndex:     internal.NewAnnoyFactory(),
		newGenerator: newFantasyGenerator,
	}
}

// newFantasyGenerator returns a nil Generator when the provider's credential
// is not set.
func newFantasyGenerator(ctx context.Context, cfg internal.GenerationConfig) (internal.Generator, error) {
	fc, ok := internal.FantasyConfigFrom(cfg)
	if !ok {
		return nil, nil
	}
	g, err := internal.NewFantasyGenerator(ctx, fc)
	if err != nil {
		return nil, err
	}
	return g, nil
}
