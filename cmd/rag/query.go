package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/4thel00z/groundrag/internal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewQueryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [question...]",
		Short: "Retrieve the chunks closest to a question",
		Long: `Embed a question, print the closest indexed chunks and, with --openai and a
provider credential in the environment, print an answer grounded in them.
Without arguments the question is read from standard input.`,
		RunE: makeQueryRunner(a),
	}

	addArtifactFlags(cmd)
	cmd.Flags().IntP("top-k", "k", internal.DefaultTopK, "Number of chunks to retrieve")
	cmd.Flags().Bool("openai", false, "Generate a grounded answer with the configured provider")
	cmd.Flags().Int("excerpt-chars", internal.DefaultMaxContextChars, "Maximum characters per excerpt sent to the model")
	return cmd
}

func makeQueryRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = s.logger.Sync() }()

		cfg := s.cfg
		applyArtifactFlags(cmd, cfg)
		overrideInt(cmd, "top-k", &cfg.Retrieval.TopK)
		overrideInt(cmd, "excerpt-chars", &cfg.Prompt.MaxContextChars)
		generate, _ := cmd.Flags().GetBool("openai")

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid flags: %w", err)
		}

		artifacts := internal.RetrieverInput{
			IndexPath: cfg.Paths.IndexPath,
			MetaPath:  cfg.Paths.MetaPath,
		}
		if err := internal.CheckArtifacts(artifacts); errors.Is(err, internal.ErrNotIngested) {
			fmt.Fprintln(cmd.OutOrStdout(), "Index or metadata not found. Run ingest first.")
			return nil
		} else if err != nil {
			return err
		}

		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			question, err = promptQuestion(cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
		}

		ctx := cmd.Context()
		embedder, err := a.newEmbedder(ctx, cfg.Embeddings, s.logger)
		if err != nil {
			return fmt.Errorf("load embedder: %w", err)
		}
		defer embedder.Close()

		retriever, err := internal.OpenRetriever(ctx, artifacts, embedder, a.newIndex, s.logger)
		if err != nil {
			return fmt.Errorf("open artifacts: %w", err)
		}

		var generator internal.Generator
		if generate {
			generator, err = a.newGenerator(ctx, cfg.Generation)
			if err != nil {
				s.logger.Warn("generation unavailable", zap.Error(err))
				fmt.Fprintf(cmd.ErrOrStderr(), "Generation unavailable: %v\n", err)
				generator = nil
			}
		}

		uc := internal.NewAnswerUseCase(retriever, internal.NewGuard(), generator, cfg.Prompt.MaxContextChars, s.logger)
		out, err := uc.Execute(ctx, internal.AnswerInput{
			Question: question,
			TopK:     cfg.Retrieval.TopK,
			Generate: generate,
		})
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}

		if s.asJSON {
			return writeJSON(cmd, queryJSON(question, out))
		}
		printAnswer(cmd, out, internal.CredentialEnv(cfg.Generation.Provider))
		return nil
	}
}

func promptQuestion(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter your question: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read question: %w", err)
	}

	question := strings.TrimSpace(line)
	if question == "" {
		return "", errors.New("empty question")
	}
	return question, nil
}

func printAnswer(cmd *cobra.Command, out *internal.AnswerOutput, credentialEnv string) {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "Retrieved sources:")
	for _, r := range out.Results {
		fmt.Fprintf(w, "- %s chunk %d\n", r.Chunk.Source, r.Chunk.ChunkIndex)
	}

	if !out.Generated {
		fmt.Fprintf(w, "\nTo generate a grounded LLM answer, set %s and run with --openai\n", credentialEnv)
		return
	}

	if out.GenerationErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Generation failed: %v\n", out.GenerationErr)
		return
	}

	fmt.Fprintln(w, "\nGrounded answer:")
	fmt.Fprintln(w, out.Answer)
}

func queryJSON(question string, out *internal.AnswerOutput) map[string]any {
	results := make([]map[string]any, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, map[string]any{
			"source":      r.Chunk.Source,
			"chunk_index": r.Chunk.ChunkIndex,
			"distance":    r.Distance,
			"text":        r.Chunk.Text,
		})
	}

	doc := map[string]any{
		"question": question,
		"results":  results,
	}
	if out.Generated {
		doc["refused"] = out.Refused
		doc["answer"] = out.Answer
		if out.GenerationErr != nil {
			doc["error"] = out.GenerationErr.Error()
		}
	}
	return doc
}
