package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"go.uber.org/zap"
)

type IngestInput struct {
	DataDir   string
	IndexPath string
	MetaPath  string
}

type IngestOutput struct {
	Files     int
	Skipped   int
	Chunks    int
	Dimension int
	IndexPath string
	MetaPath  string
}

// IngestUseCase rebuilds the index and metadata artifacts from every
// document under a data directory. The embedder is only requested once there
// is something to embed.
type IngestUseCase struct {
	reader      *DocumentReader
	chunker     Chunker
	embedderFor func(context.Context) (Embedder, error)
	newIndex    IndexFactory
	numTrees    int
	lockTimeout time.Duration
	logger      *zap.Logger
}

func NewIngestUseCase(
	reader *DocumentReader,
	chunker Chunker,
	embedderFor func(context.Context) (Embedder, error),
	newIndex IndexFactory,
	numTrees int,
	logger *zap.Logger,
) *IngestUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestUseCase{
		reader:      reader,
		chunker:     chunker,
		embedderFor: embedderFor,
		newIndex:    newIndex,
		numTrees:    numTrees,
		lockTimeout: DefaultLockTimeout,
		logger:      logger,
	}
}

func (uc *IngestUseCase) Execute(ctx context.Context, input IngestInput) (*IngestOutput, error) {
	ignore, err := NewIgnoreMatcher(input.DataDir)
	if err != nil {
		return nil, fmt.Errorf("load ignore rules: %w", err)
	}

	files, err := DiscoverFiles(input.DataDir, ignore)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, input.DataDir)
	}
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, input.DataDir)
	}

	out := &IngestOutput{
		Files:     len(files),
		IndexPath: input.IndexPath,
		MetaPath:  input.MetaPath,
	}

	chunks, skipped := uc.collectChunks(ctx, files)
	out.Skipped = skipped
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, input.DataDir)
	}
	out.Chunks = len(chunks)

	embedder, err := uc.embedderFor(ctx)
	if err != nil {
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	unlock, err := LockArtifacts(ctx, input.IndexPath, true, uc.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	uc.logger.Info("embedding chunks", zap.Int("chunks", len(texts)), zap.String("model", embedder.Model()))
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	dim := len(vectors[0])
	index, err := uc.newIndex(dim)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	for i, vec := range vectors {
		if len(vec) != dim {
			return nil, fmt.Errorf("vector %d: %w: expected %d, got %d", i, ErrDimensionMismatch, dim, len(vec))
		}
		if err := index.Add(ctx, vec); err != nil {
			return nil, fmt.Errorf("add vector %d: %w", i, err)
		}
	}
	if err := index.Build(ctx, uc.numTrees); err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	if err := index.Save(ctx, input.IndexPath); err != nil {
		return nil, fmt.Errorf("write index: %w", err)
	}
	if err := SaveMetadata(input.MetaPath, chunks); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}

	out.Dimension = dim
	uc.logger.Debug("artifacts written",
		zap.String("index", input.IndexPath),
		zap.String("metadata", input.MetaPath),
		zap.Int("dimension", dim),
	)
	return out, nil
}

// collectChunks reads and splits every file. Files that fail to read are
// logged and counted as skipped. chunk_index counts every raw chunk of a
// file, including blank ones that are dropped.
func (uc *IngestUseCase) collectChunks(ctx context.Context, files []string) ([]Chunk, int) {
	var (
		chunks  []Chunk
		skipped int
	)

	for _, path := range files {
		if ctx.Err() != nil {
			break
		}

		text, err := uc.reader.Read(path)
		if err != nil {
			uc.logger.Warn("skipping file", zap.String("path", path), zap.Error(err))
			skipped++
			continue
		}

		parts, err := uc.chunker.Split(text)
		if err != nil {
			uc.logger.Warn("skipping file", zap.String("path", path), zap.Error(err))
			skipped++
			continue
		}

		i := 0
		for part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				chunks = append(chunks, Chunk{Source: path, ChunkIndex: i, Text: trimmed})
			}
			i++
		}
		uc.logger.Debug("read file", zap.String("path", path), zap.Int("chunks", i))
	}

	return chunks, skipped
}
