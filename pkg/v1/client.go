// Package v1 is a Go client for ingesting a document directory and asking
// grounded questions against it without going through the rag CLI.
package v1

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/4thel00z/groundrag/internal"
	"go.uber.org/zap"
)

type Client struct {
	cfg       *internal.Config
	logger    *zap.Logger
	newIndex  internal.IndexFactory
	generator internal.Generator

	mu          sync.Mutex
	embedder    internal.Embedder
	ownEmbedder bool
}

// New builds a Client. Without WithConfigFile the nearest rag.yaml above the
// working directory is used, falling back to defaults.
func New(opts ...Option) (*Client, error) {
	cc := &clientConfig{}
	for _, opt := range opts {
		opt(cc)
	}

	ws := internal.NewWorkspaceResolver().Resolve(cc.configPath)
	cfg := internal.DefaultConfig()
	if ws.Found {
		loaded, err := internal.LoadConfig(ws.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if cc.configPath != "" {
		return nil, fmt.Errorf("config not found: %s", cc.configPath)
	}
	applyOverrides(cfg, cc)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cc.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		cfg:       cfg,
		logger:    logger,
		newIndex:  internal.NewAnnoyFactory(),
		generator: cc.generator,
	}
	if cc.embedder != nil {
		c.embedder = cc.embedder
	}
	return c, nil
}

func applyOverrides(cfg *internal.Config, cc *clientConfig) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Paths.DataDir, cc.dataDir)
	set(&cfg.Paths.IndexPath, cc.indexPath)
	set(&cfg.Paths.MetaPath, cc.metaPath)
	set(&cfg.Embeddings.Model, cc.model)
	set(&cfg.Embeddings.Backend, cc.backend)
	set(&cfg.Embeddings.CacheDir, cc.cacheDir)
	if cc.dimension > 0 {
		cfg.Embeddings.Dimension = cc.dimension
	}
	if cc.topK > 0 {
		cfg.Retrieval.TopK = cc.topK
	}
}

// embedderFor loads the configured embedder on first use.
func (c *Client) embedderFor(ctx context.Context) (internal.Embedder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.embedder != nil {
		return c.embedder, nil
	}
	e, err := internal.NewEmbedder(ctx, c.cfg.Embeddings, c.logger)
	if err != nil {
		return nil, err
	}
	c.embedder = e
	c.ownEmbedder = true
	return e, nil
}

// Ingest rebuilds the index and metadata artifacts from the data directory.
func (c *Client) Ingest(ctx context.Context) (*IngestResult, error) {
	chunker, err := internal.NewChunker(c.cfg.Chunking)
	if err != nil {
		return nil, err
	}

	uc := internal.NewIngestUseCase(
		internal.NewDocumentReader(os.Getenv(internal.UnidocLicenseEnv)),
		chunker,
		c.embedderFor,
		c.newIndex,
		c.cfg.Retrieval.NumTrees,
		c.logger,
	)
	out, err := uc.Execute(ctx, internal.IngestInput{
		DataDir:   c.cfg.Paths.DataDir,
		IndexPath: c.cfg.Paths.IndexPath,
		MetaPath:  c.cfg.Paths.MetaPath,
	})
	if err != nil {
		return nil, err
	}

	return &IngestResult{
		Files:     out.Files,
		Skipped:   out.Skipped,
		Chunks:    out.Chunks,
		Dimension: out.Dimension,
		IndexPath: out.IndexPath,
		MetaPath:  out.MetaPath,
	}, nil
}

// Search returns the k chunks closest to query. k <= 0 uses the configured
// top_k.
func (c *Client) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	retriever, err := c.openRetriever(ctx)
	if err != nil {
		return nil, err
	}

	results, err := retriever.Search(ctx, query, c.topK(k))
	if err != nil {
		return nil, err
	}
	return toSearchResults(results), nil
}

// Ask retrieves context for question and, when a Generator was supplied,
// answers it from that context. Sensitive questions without supporting
// evidence are refused before the generator is called.
func (c *Client) Ask(ctx context.Context, question string, k int) (*Answer, error) {
	retriever, err := c.openRetriever(ctx)
	if err != nil {
		return nil, err
	}

	uc := internal.NewAnswerUseCase(retriever, internal.NewGuard(), c.generator, c.cfg.Prompt.MaxContextChars, c.logger)
	out, err := uc.Execute(ctx, internal.AnswerInput{
		Question: question,
		TopK:     c.topK(k),
		Generate: c.generator != nil,
	})
	if err != nil {
		return nil, err
	}

	return &Answer{
		Results: toSearchResults(out.Results),
		Refused: out.Refused,
		Text:    out.Answer,
		Err:     out.GenerationErr,
	}, nil
}

// Close releases an embedder the client loaded itself.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.embedder == nil || !c.ownEmbedder {
		return nil
	}
	err := c.embedder.Close()
	c.embedder = nil
	return err
}

func (c *Client) openRetriever(ctx context.Context) (*internal.Retriever, error) {
	input := internal.RetrieverInput{
		IndexPath: c.cfg.Paths.IndexPath,
		MetaPath:  c.cfg.Paths.MetaPath,
	}
	if err := internal.CheckArtifacts(input); err != nil {
		return nil, err
	}

	embedder, err := c.embedderFor(ctx)
	if err != nil {
		return nil, fmt.Errorf("load embedder: %w", err)
	}
	return internal.OpenRetriever(ctx, input, embedder, c.newIndex, c.logger)
}

func (c *Client) topK(k int) int {
	if k > 0 {
		return k
	}
	return c.cfg.Retrieval.TopK
}

func toSearchResults(results []internal.RetrievalResult) []SearchResult {
	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			Source:     r.Chunk.Source,
			ChunkIndex: r.Chunk.ChunkIndex,
			Text:       r.Chunk.Text,
			Distance:   r.Distance,
		}
	}
	return out
}
