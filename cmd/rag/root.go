package main

import (
	"fmt"

	"github.com/4thel00z/groundrag/internal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewRootCmd(version string, a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "rag",
		Short:         "Grounded retrieval over local documents",
		Long:          `Chunk, embed and index local documents, then retrieve the closest chunks for a question and optionally ask a language model for an answer grounded in them.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)

	if a != nil {
		rootCmd.AddCommand(
			NewIngestCmd(a),
			NewQueryCmd(a),
			NewConfigCmd(),
		)
	}

	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "Config file (default: rag.yaml in the working directory or a parent)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
}

// settings is the per-invocation state shared by all commands.
type settings struct {
	workspace internal.Workspace
	cfg       *internal.Config
	logger    *zap.Logger
	asJSON    bool
}

func loadSettings(cmd *cobra.Command) (*settings, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	asJSON, _ := cmd.Flags().GetBool("json")

	ws := internal.NewWorkspaceResolver().Resolve(configPath)
	if configPath != "" && !ws.Found {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	cfg, err := internal.LoadConfig(ws.ConfigPath)
	if err != nil {
		return nil, err
	}

	logger, err := internal.NewLogger(verbose)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	if ws.Found {
		logger.Debug("using config", zap.String("path", ws.ConfigPath))
	}

	return &settings{
		workspace: ws,
		cfg:       cfg,
		logger:    logger,
		asJSON:    asJSON,
	}, nil
}

// overrideString copies a flag into target when the user set it explicitly,
// so unset flags leave config values alone.
func overrideString(cmd *cobra.Command, name string, target *string) {
	if cmd.Flags().Changed(name) {
		*target, _ = cmd.Flags().GetString(name)
	}
}

func overrideInt(cmd *cobra.Command, name string, target *int) {
	if cmd.Flags().Changed(name) {
		*target, _ = cmd.Flags().GetInt(name)
	}
}

// addArtifactFlags registers the flags shared by ingest and query.
func addArtifactFlags(cmd *cobra.Command) {
	defaults := internal.DefaultConfig()
	cmd.Flags().String("index-path", defaults.Paths.IndexPath, "Index artifact path")
	cmd.Flags().String("meta-path", defaults.Paths.MetaPath, "Metadata artifact path")
	cmd.Flags().String("model", defaults.Embeddings.Model, "Embedding model name or .gguf path")
}

func applyArtifactFlags(cmd *cobra.Command, cfg *internal.Config) {
	overrideString(cmd, "index-path", &cfg.Paths.IndexPath)
	overrideString(cmd, "meta-path", &cfg.Paths.MetaPath)
	overrideString(cmd, "model", &cfg.Embeddings.Model)
}
