package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuchat/internal/embedding"
	"docuchat/internal/index"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{1, 0, 0}
	}
	return vecs, nil
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newTestIngestor(t *testing.T, embedder embedding.Embedder, opts Options) (*Ingestor, *index.Local) {
	t.Helper()
	idx, err := index.NewLocal("", "test", true)
	require.NoError(t, err)
	retry := embedding.RetryPolicy{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return New(embedding.NewBatcher(embedder, 16, 0, retry), idx, opts), idx
}

func TestIngestDirectory(t *testing.T) {
	ctx := context.Background()

	t.Run("indexes every supported file", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "people.csv", "name,city\nAlice,Berlin\nBob,Lisbon\nCarol,Oslo\n")
		writeFile(t, dir, "notes.txt", "remember to water the plants")

		ing, idx := newTestIngestor(t, &fakeEmbedder{}, Options{Workers: 2})
		report, err := ing.IngestDirectory(ctx, dir)
		require.NoError(t, err)

		assert.Equal(t, 2, report.FilesProcessed)
		assert.Equal(t, 4, report.ChunksCreated)
		assert.Empty(t, report.FilesFailed)

		count, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, count)
	})

	t.Run("re-ingesting does not duplicate", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "people.csv", "name,city\nAlice,Berlin\nBob,Lisbon\n")

		ing, idx := newTestIngestor(t, &fakeEmbedder{}, Options{})
		_, err := ing.IngestDirectory(ctx, dir)
		require.NoError(t, err)
		report, err := ing.IngestDirectory(ctx, dir)
		require.NoError(t, err)

		assert.Equal(t, 2, report.ChunksCreated)
		count, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("a bad file fails alone", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "people.csv", "name\nAlice\n")
		writeFile(t, dir, "image.png", "not a document")

		ing, idx := newTestIngestor(t, &fakeEmbedder{}, Options{})
		report, err := ing.IngestDirectory(ctx, dir)
		require.NoError(t, err)

		assert.Equal(t, 1, report.FilesProcessed)
		require.Len(t, report.FilesFailed, 1)
		assert.Equal(t, "image.png", report.FilesFailed[0].FileName)

		count, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("dot files and metadata streams are skipped", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ".hidden.csv", "a\n1\n")
		writeFile(t, dir, "real.csv", "a\n1\n")

		ing, _ := newTestIngestor(t, &fakeEmbedder{}, Options{})
		report, err := ing.IngestDirectory(ctx, dir)
		require.NoError(t, err)

		assert.Equal(t, 1, report.FilesProcessed)
		assert.Empty(t, report.FilesFailed)
	})

	t.Run("an embedding outage fails the file", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "people.csv", "name\nAlice\n")

		ing, idx := newTestIngestor(t, &fakeEmbedder{err: errors.New("model not found")}, Options{})
		report, err := ing.IngestDirectory(ctx, dir)
		require.NoError(t, err)

		require.Len(t, report.FilesFailed, 1)
		assert.Equal(t, 0, report.ChunksCreated)
		count, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("an empty file counts as processed", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "empty.txt", "")

		ing, _ := newTestIngestor(t, &fakeEmbedder{}, Options{})
		report, err := ing.IngestDirectory(ctx, dir)
		require.NoError(t, err)

		assert.Equal(t, 1, report.FilesProcessed)
		assert.Equal(t, 0, report.ChunksCreated)
		assert.Empty(t, report.FilesFailed)
	})

	t.Run("missing directory is an error", func(t *testing.T) {
		ing, _ := newTestIngestor(t, &fakeEmbedder{}, Options{})
		_, err := ing.IngestDirectory(ctx, filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})

	t.Run("source urls are derived from the base url", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "sales report.csv", "q\n1\n")

		ing, idx := newTestIngestor(t, &fakeEmbedder{}, Options{SourceBaseURL: "https://files.example.com/docs/"})
		_, err := ing.IngestDirectory(ctx, dir)
		require.NoError(t, err)

		hits, err := idx.Query(ctx, "", []float32{1, 0, 0}, 1, nil)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "https://files.example.com/docs/sales%20report.csv", hits[0].Entry.SourceURL)
	})
}
