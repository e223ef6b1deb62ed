package v1

import "go.uber.org/zap"

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	configPath string
	dataDir    string
	indexPath  string
	metaPath   string
	model      string
	backend    string
	cacheDir   string
	dimension  int
	topK       int
	embedder   Embedder
	generator  Generator
	logger     *zap.Logger
}

// WithConfigFile loads settings from a rag.yaml file. Other options override
// values read from it.
func WithConfigFile(path string) Option {
	return func(c *clientConfig) {
		c.configPath = path
	}
}

// WithDataDir sets the directory Ingest reads documents from.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) {
		c.dataDir = dir
	}
}

// WithArtifacts sets the index and metadata artifact paths.
func WithArtifacts(indexPath, metaPath string) Option {
	return func(c *clientConfig) {
		c.indexPath = indexPath
		c.metaPath = metaPath
	}
}

// WithModel sets the embedding model name or GGUF path.
func WithModel(model string) Option {
	return func(c *clientConfig) {
		c.model = model
	}
}

// WithBackend selects the embedding backend ("gollama" or "openai").
func WithBackend(backend string) Option {
	return func(c *clientConfig) {
		c.backend = backend
	}
}

// WithCacheDir sets the model cache directory.
func WithCacheDir(dir string) Option {
	return func(c *clientConfig) {
		c.cacheDir = dir
	}
}

// WithDimension sets the embedding dimension.
func WithDimension(dim int) Option {
	return func(c *clientConfig) {
		c.dimension = dim
	}
}

// WithTopK sets the default number of chunks to retrieve.
func WithTopK(k int) Option {
	return func(c *clientConfig) {
		c.topK = k
	}
}

// WithEmbedder replaces the configured embedding backend. The client does not
// close an embedder passed this way.
func WithEmbedder(e Embedder) Option {
	return func(c *clientConfig) {
		c.embedder = e
	}
}

// WithGenerator enables Ask to produce answers with g.
func WithGenerator(g Generator) Option {
	return func(c *clientConfig) {
		c.generator = g
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}
