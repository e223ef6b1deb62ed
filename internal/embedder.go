package internal

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// HFTokenEnv authenticates model downloads from Hugging Face.
const HFTokenEnv = "HF_TOKEN"

// NewEmbedder builds the embedding backend named by cfg. The gollama backend
// resolves cfg.Model to a GGUF file, downloading known models on first use.
func NewEmbedder(ctx context.Context, cfg EmbeddingsConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Backend {
	case BackendOpenAI:
		e, err := NewOpenAIEmbedder(OpenAIEmbedderConfig{
			APIKey:    os.Getenv(CredentialEnv(BackendOpenAI)),
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
		if err != nil {
			return nil, err
		}
		logger.Debug("openai embedder ready", zap.String("model", e.Model()), zap.Int("dimension", e.Dimension()))
		return e, nil

	case BackendGollama, "":
		return newLocalEmbedder(ctx, cfg, logger)

	default:
		return nil, fmt.Errorf("unsupported embeddings backend: %s", cfg.Backend)
	}
}

func newLocalEmbedder(ctx context.Context, cfg EmbeddingsConfig, logger *zap.Logger) (*LocalEmbedder, error) {
	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		dir, err := DefaultCacheDir()
		if err != nil {
			return nil, fmt.Errorf("resolve cache dir: %w", err)
		}
		cacheDir = dir
	}

	device, err := ParseDevice(cfg.Device)
	if err != nil {
		return nil, err
	}

	dl := NewDownloader(cacheDir, os.Getenv(HFTokenEnv))
	lastPct := -1
	path, known, err := dl.ResolveModel(ctx, cfg.Model, func(written, total int64) {
		if total <= 0 {
			return
		}
		pct := int(written * 100 / total)
		if pct/10 != lastPct/10 {
			lastPct = pct
			logger.Info("downloading embedding model", zap.String("model", cfg.Model), zap.Int("percent", pct))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("resolve embedding model: %w: %w", ErrCollaboratorUnavailable, err)
	}

	dim := cfg.Dimension
	if dim == 0 {
		dim = known.Dimension
	}

	e, err := NewLocalEmbedder(path, dim,
		WithModelName(cfg.Model),
		WithDevice(device),
		WithEmbedderLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	logger.Debug("local embedder ready",
		zap.String("model", cfg.Model),
		zap.String("path", path),
		zap.String("device", e.Device()),
		zap.Int("dimension", e.Dimension()),
	)
	return e, nil
}
