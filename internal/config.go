package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultEmbeddingModel  = "all-MiniLM-L6-v2"
	DefaultGenerationModel = "gpt-4o-mini"
	DefaultTopK            = 5
	DefaultNumTrees        = 10
	DefaultMaxContextChars = 1500
	DefaultMaxTokens       = 400

	BackendGollama = "gollama"
	BackendOpenAI  = "openai"
)

type EmbeddingsConfig struct {
	Backend   string `yaml:"backend"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	Device    string `yaml:"device,omitempty"`
	CacheDir  string `yaml:"cache_dir,omitempty"`
}

type GenerationConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
}

type ChunkingConfig struct {
	Strategy string `yaml:"strategy"`
	Size     int    `yaml:"size"`
	Overlap  int    `yaml:"overlap"`
}

type RetrievalConfig struct {
	TopK     int `yaml:"top_k"`
	NumTrees int `yaml:"num_trees"`
}

type PromptConfig struct {
	MaxContextChars int `yaml:"max_context_chars"`
}

type PathsConfig struct {
	DataDir   string `yaml:"data_dir"`
	IndexPath string `yaml:"index_path"`
	MetaPath  string `yaml:"meta_path"`
}

type Config struct {
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Generation GenerationConfig `yaml:"generation"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Prompt     PromptConfig     `yaml:"prompt"`
	Paths      PathsConfig      `yaml:"paths"`
}

func DefaultConfig() *Config {
	return &Config{
		Embeddings: EmbeddingsConfig{
			Backend: BackendGollama,
			Model:   DefaultEmbeddingModel,
		},
		Generation: GenerationConfig{
			Provider:    "openai",
			Model:       DefaultGenerationModel,
			Temperature: 0,
			MaxTokens:   DefaultMaxTokens,
		},
		Chunking: ChunkingConfig{
			Strategy: StrategyWindow,
			Size:     DefaultChunkSize,
			Overlap:  DefaultChunkOverlap,
		},
		Retrieval: RetrievalConfig{
			TopK:     DefaultTopK,
			NumTrees: DefaultNumTrees,
		},
		Prompt: PromptConfig{
			MaxContextChars: DefaultMaxContextChars,
		},
		Paths: PathsConfig{
			DataDir:   "data",
			IndexPath: filepath.Join("artifacts", "faiss.index"),
			MetaPath:  filepath.Join("artifacts", "meta.json"),
		},
	}
}

// LoadConfig reads a YAML config. Keys missing from the file keep their
// default values; a missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("chunking.overlap must not be negative, got %d", c.Chunking.Overlap)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k: %w", ErrInvalidTopK)
	}
	if c.Retrieval.NumTrees <= 0 {
		return fmt.Errorf("retrieval.num_trees must be positive, got %d", c.Retrieval.NumTrees)
	}
	if c.Prompt.MaxContextChars < 4 {
		return fmt.Errorf("prompt.max_context_chars must be at least 4, got %d", c.Prompt.MaxContextChars)
	}
	switch c.Embeddings.Backend {
	case BackendGollama, BackendOpenAI:
	default:
		return fmt.Errorf("unsupported embeddings backend: %s", c.Embeddings.Backend)
	}
	if c.Embeddings.Dimension < 0 {
		return fmt.Errorf("embeddings.dimension must not be negative, got %d", c.Embeddings.Dimension)
	}
	if _, err := ParseDevice(c.Embeddings.Device); err != nil {
		return fmt.Errorf("embeddings.device: %w", err)
	}
	switch c.Generation.Provider {
	case "openai", "anthropic", "openrouter":
	default:
		return fmt.Errorf("unsupported generation provider: %s", c.Generation.Provider)
	}
	if c.Generation.MaxTokens <= 0 {
		return fmt.Errorf("generation.max_tokens must be positive, got %d", c.Generation.MaxTokens)
	}
	return nil
}

// CredentialEnv names the environment variable holding the API key for a
// generation provider.
func CredentialEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openrouter":
		return "OPENROUTER_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// LoadEnv loads a .env file from the working directory when one exists.
// Variables already set in the environment win.
func LoadEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}
