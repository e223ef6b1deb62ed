package internal

import (
	"fmt"
	"iter"
	"slices"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	StrategyWindow    = "window"
	StrategyRecursive = "recursive"
)

type Chunker interface {
	Split(text string) (iter.Seq[string], error)
}

// ChunkText yields overlapping windows of at most size characters. Each window
// starts size-overlap characters after the previous one. When overlap is not
// smaller than size the step falls back to one character so the sequence
// always terminates. The sequence is lazy and can be ranged over repeatedly.
func ChunkText(text string, size, overlap int) iter.Seq[string] {
	return func(yield func(string) bool) {
		if size <= 0 {
			return
		}

		runes := []rune(text)
		step := WindowStep(size, overlap)

		for start := 0; start < len(runes); start += step {
			end := min(start+size, len(runes))
			if !yield(string(runes[start:end])) {
				return
			}
		}
	}
}

// WindowStep is the distance between the starts of two consecutive windows.
func WindowStep(size, overlap int) int {
	step := size - overlap
	if step <= 0 {
		return 1
	}
	return step
}

func NewChunker(cfg ChunkingConfig) (Chunker, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.Size)
	}
	if cfg.Overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", cfg.Overlap)
	}

	switch cfg.Strategy {
	case "", StrategyWindow:
		return windowChunker{size: cfg.Size, overlap: cfg.Overlap}, nil
	case StrategyRecursive:
		return recursiveChunker{
			splitter: textsplitter.NewRecursiveCharacter(
				textsplitter.WithChunkSize(cfg.Size),
				textsplitter.WithChunkOverlap(min(cfg.Overlap, cfg.Size-1)),
			),
		}, nil
	default:
		return nil, fmt.Errorf("unknown chunking strategy: %s", cfg.Strategy)
	}
}

type windowChunker struct {
	size    int
	overlap int
}

func (c windowChunker) Split(text string) (iter.Seq[string], error) {
	return ChunkText(text, c.size, c.overlap), nil
}

// recursiveChunker prefers paragraph, line and word boundaries over hard cuts.
type recursiveChunker struct {
	splitter textsplitter.RecursiveCharacter
}

func (c recursiveChunker) Split(text string) (iter.Seq[string], error) {
	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	return slices.Values(parts), nil
}
