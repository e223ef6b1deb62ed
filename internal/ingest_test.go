package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ingestFixture struct {
	dataDir   string
	indexPath string
	metaPath  string
	embedder  *letterEmbedder
	uc        *IngestUseCase
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	root := t.TempDir()

	chunker, err := NewChunker(ChunkingConfig{Size: 20, Overlap: 5})
	require.NoError(t, err)

	emb := &letterEmbedder{}
	return &ingestFixture{
		dataDir:   filepath.Join(root, "data"),
		indexPath: filepath.Join(root, "artifacts", "faiss.index"),
		metaPath:  filepath.Join(root, "artifacts", "meta.json"),
		embedder:  emb,
		uc:        NewIngestUseCase(NewDocumentReader(""), chunker, staticEmbedder(emb), newFlatFactory(), DefaultNumTrees, nil),
	}
}

func (f *ingestFixture) input() IngestInput {
	return IngestInput{DataDir: f.dataDir, IndexPath: f.indexPath, MetaPath: f.metaPath}
}

func TestIngestWritesArtifacts(t *testing.T) {
	f := newIngestFixture(t)
	writeFile(t, filepath.Join(f.dataDir, "a.txt"), "alpha beta gamma delta epsilon zeta")
	writeFile(t, filepath.Join(f.dataDir, "sub", "b.md"), "short note")
	writeFile(t, filepath.Join(f.dataDir, "skip.csv"), "x,y,z")

	out, err := f.uc.Execute(context.Background(), f.input())
	require.NoError(t, err)

	assert.Equal(t, 2, out.Files)
	assert.Equal(t, 0, out.Skipped)
	assert.Equal(t, 26, out.Dimension)
	assert.Equal(t, int32(1), f.embedder.batches.Load(), "all chunks embed in one batch")

	chunks, err := LoadMetadata(f.metaPath)
	require.NoError(t, err)
	assert.Len(t, chunks, out.Chunks)

	idx := &flatIndex{dim: 26}
	require.NoError(t, idx.Load(context.Background(), f.indexPath, len(chunks)))
	assert.Equal(t, len(chunks), idx.Len(), "metadata and index must stay parallel")

	// Positional correspondence: vector i is the embedding of chunk i.
	for i, c := range chunks {
		want, _ := f.embedder.Embed(context.Background(), c.Text)
		assert.InDeltaSlice(t, want, idx.vectors[i], 1e-6, "position %d", i)
	}

	var sources []string
	for _, c := range chunks {
		sources = append(sources, c.Source)
	}
	assert.Contains(t, sources, filepath.Join(f.dataDir, "a.txt"))
	assert.Contains(t, sources, filepath.Join(f.dataDir, "sub", "b.md"))
}

func TestIngestChunkIndexCountsBlankWindows(t *testing.T) {
	f := newIngestFixture(t)
	// With size 20 and overlap 5 the step is 15: windows start at 0, 15 and
	// 30. The middle window is all spaces and is dropped but keeps its index.
	text := "aaaaaaaaaaaaaaa" + strings.Repeat(" ", 20) + "bbbbbbbbbb"
	writeFile(t, filepath.Join(f.dataDir, "gap.txt"), text)

	_, err := f.uc.Execute(context.Background(), f.input())
	require.NoError(t, err)

	chunks, err := LoadMetadata(f.metaPath)
	require.NoError(t, err)

	var indices []int
	for _, c := range chunks {
		indices = append(indices, c.ChunkIndex)
		assert.Equal(t, strings.TrimSpace(c.Text), c.Text)
		assert.NotEmpty(t, c.Text)
	}
	assert.Equal(t, []int{0, 2}, indices)
}

func TestIngestEmptyDataDir(t *testing.T) {
	f := newIngestFixture(t)
	require.NoError(t, os.MkdirAll(f.dataDir, 0755))
	f.uc.embedderFor = func(context.Context) (Embedder, error) {
		t.Fatal("embedder must not load without documents")
		return nil, nil
	}

	_, err := f.uc.Execute(context.Background(), f.input())
	assert.True(t, errors.Is(err, ErrNoDocuments))

	_, statErr := os.Stat(f.indexPath)
	assert.True(t, os.IsNotExist(statErr), "no index should be written")
	_, statErr = os.Stat(f.metaPath)
	assert.True(t, os.IsNotExist(statErr), "no metadata should be written")
}

func TestIngestMissingDataDir(t *testing.T) {
	f := newIngestFixture(t)

	_, err := f.uc.Execute(context.Background(), f.input())
	assert.True(t, errors.Is(err, ErrNoDocuments))
}

func TestIngestOnlyBlankDocuments(t *testing.T) {
	f := newIngestFixture(t)
	writeFile(t, filepath.Join(f.dataDir, "blank.txt"), "   \n\t  ")

	_, err := f.uc.Execute(context.Background(), f.input())
	assert.True(t, errors.Is(err, ErrNoDocuments))
}

func TestIngestSkipsUnreadableFiles(t *testing.T) {
	f := newIngestFixture(t)
	writeFile(t, filepath.Join(f.dataDir, "ok.txt"), "readable content")
	// No license key is configured, so PDF extraction fails for this file.
	writeFile(t, filepath.Join(f.dataDir, "broken.pdf"), "%PDF-1.4 not really")

	out, err := f.uc.Execute(context.Background(), f.input())
	require.NoError(t, err)
	assert.Equal(t, 2, out.Files)
	assert.Equal(t, 1, out.Skipped)

	chunks, err := LoadMetadata(f.metaPath)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.Equal(t, filepath.Join(f.dataDir, "ok.txt"), c.Source)
	}
}

func TestIngestHonoursIgnoreFile(t *testing.T) {
	f := newIngestFixture(t)
	writeFile(t, filepath.Join(f.dataDir, IgnoreFilename), "drafts/\n")
	writeFile(t, filepath.Join(f.dataDir, "keep.txt"), "keep me")
	writeFile(t, filepath.Join(f.dataDir, "drafts", "wip.txt"), "ignore me")

	out, err := f.uc.Execute(context.Background(), f.input())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Files)
}

func TestIngestIsIdempotent(t *testing.T) {
	f := newIngestFixture(t)
	writeFile(t, filepath.Join(f.dataDir, "a.txt"), "the same content every time, long enough to chunk")

	_, err := f.uc.Execute(context.Background(), f.input())
	require.NoError(t, err)
	first, err := os.ReadFile(f.metaPath)
	require.NoError(t, err)

	_, err = f.uc.Execute(context.Background(), f.input())
	require.NoError(t, err)
	second, err := os.ReadFile(f.metaPath)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestIngestEmbedderFailure(t *testing.T) {
	f := newIngestFixture(t)
	f.embedder.fail = errFakeTransport
	writeFile(t, filepath.Join(f.dataDir, "a.txt"), "content")

	_, err := f.uc.Execute(context.Background(), f.input())
	assert.True(t, errors.Is(err, errFakeTransport))

	_, statErr := os.Stat(f.metaPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestIngestWithAnnoyIndex(t *testing.T) {
	f := newIngestFixture(t)
	f.uc.newIndex = NewAnnoyFactory()
	writeFile(t, filepath.Join(f.dataDir, "a.txt"), "zebra zebra zebra")
	writeFile(t, filepath.Join(f.dataDir, "b.txt"), "apple apple apple")

	out, err := f.uc.Execute(context.Background(), f.input())
	require.NoError(t, err)
	assert.Equal(t, 2, out.Chunks)

	r, err := OpenRetriever(context.Background(), RetrieverInput{IndexPath: f.indexPath, MetaPath: f.metaPath}, f.embedder, NewAnnoyFactory(), nil)
	require.NoError(t, err)

	results, err := r.Search(context.Background(), "apple", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, filepath.Join(f.dataDir, "b.txt"), results[0].Chunk.Source)
}

func TestIngestEmbedderUnavailable(t *testing.T) {
	f := newIngestFixture(t)
	f.uc.embedderFor = func(context.Context) (Embedder, error) {
		return nil, ErrCollaboratorUnavailable
	}
	writeFile(t, filepath.Join(f.dataDir, "a.txt"), "content")

	_, err := f.uc.Execute(context.Background(), f.input())
	assert.True(t, errors.Is(err, ErrCollaboratorUnavailable))
}
