package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/4thel00z/groundrag/internal"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewIngestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Build the index and metadata from a data directory",
		Long: `Read every .txt, .md and .pdf file under the data directory, split it into
overlapping chunks, embed the chunks and write the index and metadata
artifacts. Existing artifacts are replaced.`,
		Args: cobra.NoArgs,
		RunE: makeIngestRunner(a),
	}

	cmd.Flags().String("data-dir", internal.DefaultConfig().Paths.DataDir, "Directory with documents (.txt, .md, .pdf)")
	addArtifactFlags(cmd)
	cmd.Flags().Bool("watch", false, "Rebuild the artifacts whenever the data directory changes")
	cmd.Flags().Duration("debounce", time.Second, "Debounce window for batching changes in watch mode")
	return cmd
}

func makeIngestRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = s.logger.Sync() }()

		cfg := s.cfg
		overrideString(cmd, "data-dir", &cfg.Paths.DataDir)
		applyArtifactFlags(cmd, cfg)
		watch, _ := cmd.Flags().GetBool("watch")
		debounce, _ := cmd.Flags().GetDuration("debounce")
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid flags: %w", err)
		}

		chunker, err := internal.NewChunker(cfg.Chunking)
		if err != nil {
			return err
		}

		// The embedder is loaded on first use and reused across watch rebuilds.
		var embedder internal.Embedder
		defer func() {
			if embedder != nil {
				_ = embedder.Close()
			}
		}()
		embedderFor := func(ctx context.Context) (internal.Embedder, error) {
			if embedder == nil {
				e, err := a.newEmbedder(ctx, cfg.Embeddings, s.logger)
				if err != nil {
					return nil, err
				}
				embedder = e
			}
			return embedder, nil
		}

		uc := internal.NewIngestUseCase(
			internal.NewDocumentReader(os.Getenv(internal.UnidocLicenseEnv)),
			chunker,
			embedderFor,
			a.newIndex,
			cfg.Retrieval.NumTrees,
			s.logger,
		)
		input := internal.IngestInput{
			DataDir:   cfg.Paths.DataDir,
			IndexPath: cfg.Paths.IndexPath,
			MetaPath:  cfg.Paths.MetaPath,
		}

		if err := runIngest(cmd, uc, input, s.asJSON); err != nil {
			return err
		}
		if !watch {
			return nil
		}
		return watchAndIngest(cmd, uc, input, debounce, s)
	}
}

func runIngest(cmd *cobra.Command, uc *internal.IngestUseCase, input internal.IngestInput, asJSON bool) error {
	out, err := uc.Execute(cmd.Context(), input)
	if errors.Is(err, internal.ErrNoDocuments) {
		if asJSON {
			return writeJSON(cmd, map[string]any{"documents": 0, "data_dir": input.DataDir})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "No documents found in %s\n", input.DataDir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	if asJSON {
		return writeJSON(cmd, map[string]any{
			"files":      out.Files,
			"skipped":    out.Skipped,
			"chunks":     out.Chunks,
			"dimension":  out.Dimension,
			"index_path": out.IndexPath,
			"meta_path":  out.MetaPath,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote index to %s and metadata to %s\n", out.IndexPath, out.MetaPath)
	return nil
}

// watchAndIngest reruns the full ingestion after changes under the data
// directory settle for the debounce window.
func watchAndIngest(cmd *cobra.Command, uc *internal.IngestUseCase, input internal.IngestInput, debounce time.Duration, s *settings) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addWatchDirs(watcher, input.DataDir); err != nil {
		return fmt.Errorf("add watch dirs: %w", err)
	}

	skip := []string{
		input.IndexPath,
		input.MetaPath,
		internal.LockPath(input.IndexPath),
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes...\n", input.DataDir)

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if shouldIgnoreEvent(event, skip) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addWatchDirs(watcher, event.Name)
				}
			}
			s.logger.Debug("change detected", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			if !pending {
				timer.Reset(debounce)
				pending = true
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watch error", zap.Error(err))
		case <-timer.C:
			pending = false
			if err := runIngest(cmd, uc, input, s.asJSON); err != nil {
				s.logger.Error("rebuild failed", zap.Error(err))
			}
		}
	}
}

func addWatchDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}

		if info.IsDir() {
			base := filepath.Base(path)
			if strings.HasPrefix(base, ".") && path != root {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
}

// shouldIgnoreEvent drops events that cannot change the ingested corpus:
// writes to the artifacts themselves, attribute changes and files of an
// unsupported type.
func shouldIgnoreEvent(event fsnotify.Event, skip []string) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return true
	}

	name := filepath.Clean(event.Name)
	for _, p := range skip {
		if name == filepath.Clean(p) {
			return true
		}
	}

	if filepath.Base(name) == internal.IgnoreFilename {
		return false
	}
	// Extensionless names may be directories; removals can't be stat'ed.
	if filepath.Ext(name) == "" {
		return false
	}
	return !internal.IsSupportedFile(name)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
