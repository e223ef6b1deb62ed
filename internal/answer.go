package internal

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
)

type AnswerInput struct {
	Question string
	TopK     int
	// Generate requests a model answer on top of retrieval. It has no effect
	// when the use case was built without a generator.
	Generate bool
}

type AnswerOutput struct {
	Results []RetrievalResult
	// Generated is true when the generation path ran, whether it produced a
	// refusal, an answer or an error.
	Generated     bool
	Refused       bool
	Answer        string
	GenerationErr error
}

// AnswerUseCase retrieves context for a question and, when enabled, either
// refuses or asks the generator for a grounded answer.
type AnswerUseCase struct {
	retriever       *Retriever
	guard           *Guard
	generator       Generator
	maxContextChars int
	// readSource fills excerpts whose metadata record has no text.
	readSource      func(string) (string, error)
	logger          *zap.Logger
}

// NewAnswerUseCase accepts a nil generator; generation is then disabled.
func NewAnswerUseCase(retriever *Retriever, guard *Guard, generator Generator, maxContextChars int, logger *zap.Logger) *AnswerUseCase {
	if guard == nil {
		guard = NewGuard()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerUseCase{
		retriever:       retriever,
		guard:           guard,
		generator:       generator,
		maxContextChars: maxContextChars,
		readSource:      NewDocumentReader(os.Getenv(UnidocLicenseEnv)).Read,
		logger:          logger,
	}
}

// Execute returns an error only when retrieval fails. A generator failure is
// reported in AnswerOutput.GenerationErr next to the retrieved results.
func (uc *AnswerUseCase) Execute(ctx context.Context, input AnswerInput) (*AnswerOutput, error) {
	results, err := uc.retriever.Search(ctx, input.Question, input.TopK)
	if err != nil {
		return nil, err
	}

	out := &AnswerOutput{Results: results}
	if !input.Generate || uc.generator == nil {
		return out, nil
	}
	out.Generated = true

	excerpts := ExcerptsFromResults(results, uc.readSource)
	texts := make([]string, len(excerpts))
	for i, e := range excerpts {
		texts[i] = e.Text
	}

	if d := uc.guard.Check(input.Question, texts); d.Refuse {
		uc.logger.Debug("refused sensitive question without supporting context")
		out.Refused = true
		out.Answer = d.Message
		return out, nil
	}

	prompt := AssemblePrompt(input.Question, excerpts, uc.maxContextChars)
	answer, err := uc.generator.Generate(ctx, prompt.System, prompt.User)
	if err != nil {
		uc.logger.Warn("generation failed", zap.Error(err))
		out.GenerationErr = fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		return out, nil
	}

	out.Answer = answer
	return out, nil
}
