package internal

import (
	"context"
	"fmt"
	"os"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	"charm.land/fantasy/providers/openai"
	"charm.land/fantasy/providers/openrouter"
)

type FantasyConfig struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
}

// FantasyConfigFrom fills a FantasyConfig from the generation section and the
// provider's credential variable. ok is false when no credential is set.
func FantasyConfigFrom(cfg GenerationConfig) (FantasyConfig, bool) {
	key := os.Getenv(CredentialEnv(cfg.Provider))
	return FantasyConfig{
		Provider:    cfg.Provider,
		APIKey:      key,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}, key != ""
}

var _ Generator = (*FantasyGenerator)(nil)

// FantasyGenerator answers a system/user prompt pair with a chat model.
type FantasyGenerator struct {
	model       fantasy.LanguageModel
	name        string
	temperature float64
	maxTokens   int64
}

func NewFantasyGenerator(ctx context.Context, cfg FantasyConfig) (*FantasyGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key for provider %s", ErrCollaboratorUnavailable, cfg.Provider)
	}

	var provider fantasy.Provider
	var err error

	switch cfg.Provider {
	case "openai", "":
		opts := []openai.Option{openai.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		provider, err = openai.New(opts...)

	case "anthropic":
		opts := []anthropic.Option{anthropic.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		provider, err = anthropic.New(opts...)

	case "openrouter":
		provider, err = openrouter.New(openrouter.WithAPIKey(cfg.APIKey))

	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultGenerationModel
	}

	model, err := provider.LanguageModel(ctx, modelName)
	if err != nil {
		return nil, fmt.Errorf("get language model: %w", err)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &FantasyGenerator{
		model:       model,
		name:        modelName,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (g *FantasyGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	agent := fantasy.NewAgent(g.model,
		fantasy.WithSystemPrompt(system),
		fantasy.WithTemperature(g.temperature),
		fantasy.WithMaxOutputTokens(g.maxTokens),
	)

	result, err := agent.Generate(ctx, fantasy.AgentCall{
		Prompt: user,
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	return result.Response.Content.Text(), nil
}

func (g *FantasyGenerator) Model() string {
	return g.name
}
