package internal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// KnownModel is a sentence-embedding model that can be fetched as GGUF.
type KnownModel struct {
	URL       string
	Filename  string
	Dimension int
}

var KnownModels = map[string]KnownModel{
	"all-MiniLM-L6-v2": {
		URL:       "https://huggingface.co/second-state/All-MiniLM-L6-v2-Embedding-GGUF/resolve/main/all-MiniLM-L6-v2-Q5_K_M.gguf",
		Filename:  "all-MiniLM-L6-v2-Q5_K_M.gguf",
		Dimension: 384,
	},
	"nomic-embed-text-v1.5": {
		URL:       "https://huggingface.co/nomic-ai/nomic-embed-text-v1.5-GGUF/resolve/main/nomic-embed-text-v1.5.Q4_K_M.gguf",
		Filename:  "nomic-embed-text-v1.5.Q4_K_M.gguf",
		Dimension: 768,
	},
}

type ProgressWriter struct {
	Total      int64
	Written    int64
	OnProgress func(written, total int64)
}

func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.Written += int64(n)
	if pw.OnProgress != nil {
		pw.OnProgress(pw.Written, pw.Total)
	}
	return n, nil
}

type Downloader struct {
	cacheDir string
	token    string
	client   *http.Client
}

func NewDownloader(cacheDir, token string) *Downloader {
	return &Downloader{
		cacheDir: cacheDir,
		token:    token,
		client:   http.DefaultClient,
	}
}

// ResolveModel maps an embedding model identifier to a local GGUF file. A
// path to an existing .gguf file is used as is; a known model name is
// downloaded into the cache on first use.
func (d *Downloader) ResolveModel(ctx context.Context, model string, onProgress func(written, total int64)) (string, KnownModel, error) {
	if strings.HasSuffix(strings.ToLower(model), ".gguf") {
		if _, err := os.Stat(model); err != nil {
			return "", KnownModel{}, fmt.Errorf("model file: %w", err)
		}
		return model, KnownModel{Filename: filepath.Base(model)}, nil
	}

	known, ok := KnownModels[model]
	if !ok {
		return "", KnownModel{}, fmt.Errorf("unknown embedding model %q: pass a .gguf path or one of %s", model, knownModelNames())
	}

	path, err := d.EnsureModel(ctx, known.URL, known.Filename, onProgress)
	if err != nil {
		return "", KnownModel{}, err
	}
	return path, known, nil
}

func (d *Downloader) EnsureModel(ctx context.Context, url, filename string, onProgress func(written, total int64)) (string, error) {
	modelPath := filepath.Join(d.cacheDir, filename)

	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	}

	if err := os.MkdirAll(d.cacheDir, 0755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	if err := d.download(ctx, url, modelPath, onProgress); err != nil {
		return "", err
	}

	return modelPath, nil
}

func (d *Downloader) download(ctx context.Context, url, dest string, onProgress func(written, total int64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	tmpFile := dest + ".tmp"
	f, err := os.Create(tmpFile)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	pw := &ProgressWriter{
		Total:      resp.ContentLength,
		OnProgress: onProgress,
	}

	_, err = io.Copy(f, io.TeeReader(resp.Body, pw))
	closeErr := f.Close()

	if err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("write file: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("close file: %w", closeErr)
	}

	if err := os.Rename(tmpFile, dest); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("rename file: %w", err)
	}

	return nil
}

func DefaultCacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "groundrag", "models"), nil
}

func knownModelNames() string {
	names := make([]string, 0, len(KnownModels))
	for name := range KnownModels {
		names = append(names, name)
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}
