package retriever

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuchat/internal/embedding"
	"docuchat/internal/index"
	"docuchat/internal/models"
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
		vecs[i] = []float32{1}
	}
	return vecs, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1}, nil
}

// fakeIndex returns canned hits and records the limit it was asked for.
type fakeIndex struct {
	hits      []index.Hit
	err       error
	gotTopK   int
	gotText   string
	gotVector []float32
}

func (f *fakeIndex) Upsert(context.Context, []index.Entry) error { return nil }

func (f *fakeIndex) Query(_ context.Context, text string, vector []float32, topK int, _ map[string]string) ([]index.Hit, error) {
	f.gotText = text
	f.gotVector = vector
	f.gotTopK = topK
	return f.hits, f.err
}

func (f *fakeIndex) Count(context.Context) (int, error) { return len(f.hits), nil }

func hit(id, fileName string, score float64) index.Hit {
	return index.Hit{Entry: index.Entry{ID: id, FileName: fileName, Content: "c " + id}, Score: score}
}

func newTestRetriever(idx index.Index, embedder embedding.Embedder, dedupe bool) *Retriever {
	retry := embedding.RetryPolicy{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return New(embedding.NewBatcher(embedder, 4, 0, retry), idx, dedupe)
}

func TestRetrieve(t *testing.T) {
	ctx := context.Background()

	t.Run("results come back sorted and bounded", func(t *testing.T) {
		idx := &fakeIndex{hits: []index.Hit{
			hit("b", "b.txt", 0.5),
			hit("a", "a.txt", 0.9),
			hit("d", "d.txt", 0.5),
			hit("c", "c.txt", 0.7),
		}}
		r := newTestRetriever(idx, &fakeEmbedder{}, false)

		results, err := r.Retrieve(ctx, "query", 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "a", results[0].Chunk.ID)
		assert.Equal(t, "c", results[1].Chunk.ID)
		// equal scores break by ascending id
		assert.Equal(t, "b", results[2].Chunk.ID)
	})

	t.Run("passes the trimmed question and its vector to the index", func(t *testing.T) {
		idx := &fakeIndex{}
		r := newTestRetriever(idx, &fakeEmbedder{}, false)

		_, err := r.Retrieve(ctx, "  what is this  ", 5)
		require.NoError(t, err)
		assert.Equal(t, "what is this", idx.gotText)
		assert.Equal(t, []float32{1}, idx.gotVector)
		assert.Equal(t, 5, idx.gotTopK)
	})

	t.Run("dedupe keeps the best chunk per file", func(t *testing.T) {
		idx := &fakeIndex{hits: []index.Hit{
			hit("a1", "a.txt", 0.9),
			hit("a2", "a.txt", 0.8),
			hit("b1", "b.txt", 0.7),
			hit("b2", "b.txt", 0.6),
			hit("c1", "c.txt", 0.5),
		}}
		r := newTestRetriever(idx, &fakeEmbedder{}, true)

		results, err := r.Retrieve(ctx, "query", 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "a1", results[0].Chunk.ID)
		assert.Equal(t, "b1", results[1].Chunk.ID)
		// over-fetches so deduplication can still fill the requested size
		assert.Equal(t, 6, idx.gotTopK)
	})

	t.Run("empty index yields empty results, not an error", func(t *testing.T) {
		r := newTestRetriever(&fakeIndex{}, &fakeEmbedder{}, false)

		results, err := r.Retrieve(ctx, "query", 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("embedding failure is a retrieval error", func(t *testing.T) {
		r := newTestRetriever(&fakeIndex{}, &fakeEmbedder{err: errors.New("model not found")}, false)

		_, err := r.Retrieve(ctx, "query", 5)
		var retErr *models.RetrievalError
		require.ErrorAs(t, err, &retErr)
		var embedErr *models.EmbeddingError
		assert.ErrorAs(t, err, &embedErr)
	})

	t.Run("index failure is a retrieval error", func(t *testing.T) {
		idx := &fakeIndex{err: &models.IndexError{Op: "query", Err: errors.New("boom")}}
		r := newTestRetriever(idx, &fakeEmbedder{}, false)

		_, err := r.Retrieve(ctx, "query", 5)
		var retErr *models.RetrievalError
		require.ErrorAs(t, err, &retErr)
	})
}
