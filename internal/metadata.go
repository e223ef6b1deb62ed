package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Chunk is one window of a source document. Its position in the metadata
// artifact equals the position of its vector in the index; reordering or
// filtering the artifact without rebuilding the index breaks retrieval.
type Chunk struct {
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

type RetrievalResult struct {
	Chunk    Chunk
	Distance float32
}

// SaveMetadata writes chunks as an indented JSON array. Non-ASCII text and
// HTML characters are written verbatim.
func SaveMetadata(path string, chunks []Chunk) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}

	if chunks == nil {
		chunks = []Chunk{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(chunks); err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	return nil
}

func LoadMetadata(path string) ([]Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var chunks []Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	return chunks, nil
}
