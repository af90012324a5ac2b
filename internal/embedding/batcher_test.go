package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuchat/internal/models"
)

// fakeEmbedder returns one vector per text carrying the text length, so
// alignment checks can trace a vector back to its input. failOn decides
// per call (1-based) whether to error.
type fakeEmbedder struct {
	mu     sync.Mutex
	calls  int
	seen   [][]string
	failOn func(call int) error
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.seen = append(f.seen, texts)
	if f.failOn != nil {
		if err := f.failOn(f.calls); err != nil {
			return nil, err
		}
	}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = []float32{float32(len(text))}
	}
	return vecs, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestEmbedTexts(t *testing.T) {
	ctx := context.Background()

	t.Run("preserves input order across batches", func(t *testing.T) {
		fake := &fakeEmbedder{}
		b := NewBatcher(fake, 2, 0, fastRetry(1))

		texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
		vectors, failures, err := b.EmbedTexts(ctx, texts)
		require.NoError(t, err)
		assert.Empty(t, failures)
		require.Len(t, vectors, len(texts))
		for i, text := range texts {
			assert.Equal(t, float32(len(text)), vectors[i][0])
		}
		assert.Equal(t, 3, fake.calls)
	})

	t.Run("retries a transient failure", func(t *testing.T) {
		fake := &fakeEmbedder{failOn: func(call int) error {
			if call == 1 {
				return errors.New("429 too many requests")
			}
			return nil
		}}
		b := NewBatcher(fake, 4, 0, fastRetry(3))

		vectors, failures, err := b.EmbedTexts(ctx, []string{"x", "y"})
		require.NoError(t, err)
		assert.Empty(t, failures)
		require.NotNil(t, vectors[0])
		assert.Equal(t, 2, fake.calls)
	})

	t.Run("a failed batch leaves the others intact", func(t *testing.T) {
		fake := &fakeEmbedder{failOn: func(call int) error {
			if call == 2 {
				return errors.New("invalid request")
			}
			return nil
		}}
		b := NewBatcher(fake, 2, 0, fastRetry(3))

		vectors, failures, err := b.EmbedTexts(ctx, []string{"a", "b", "c", "d", "e"})
		require.NoError(t, err)
		require.Len(t, failures, 1)
		assert.Equal(t, 2, failures[0].Start)
		assert.Equal(t, 4, failures[0].End)
		assert.False(t, failures[0].Transient)

		require.Len(t, vectors, 5)
		assert.NotNil(t, vectors[0])
		assert.NotNil(t, vectors[1])
		assert.Nil(t, vectors[2])
		assert.Nil(t, vectors[3])
		assert.NotNil(t, vectors[4])
		// no retries for a terminal error
		assert.Equal(t, 3, fake.calls)
	})

	t.Run("gives up after exhausting retries", func(t *testing.T) {
		fake := &fakeEmbedder{failOn: func(int) error {
			return errors.New("service unavailable")
		}}
		b := NewBatcher(fake, 4, 0, fastRetry(3))

		_, failures, err := b.EmbedTexts(ctx, []string{"x"})
		require.NoError(t, err)
		require.Len(t, failures, 1)
		assert.True(t, failures[0].Transient)
		assert.Equal(t, 3, fake.calls)
	})

	t.Run("oversized items are truncated before embedding", func(t *testing.T) {
		fake := &fakeEmbedder{}
		b := NewBatcher(fake, 4, 10, fastRetry(1))

		vectors, failures, err := b.EmbedTexts(ctx, []string{"0123456789abcdef"})
		require.NoError(t, err)
		assert.Empty(t, failures)
		assert.Equal(t, float32(10), vectors[0][0])
		assert.Equal(t, "0123456789", fake.seen[0][0])
	})

	t.Run("cancellation aborts the whole call", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		fake := &fakeEmbedder{failOn: func(int) error {
			return context.Canceled
		}}
		b := NewBatcher(fake, 4, 0, fastRetry(3))

		_, _, err := b.EmbedTexts(cancelled, []string{"x"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestEmbedQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the query vector", func(t *testing.T) {
		b := NewBatcher(&fakeEmbedder{}, 4, 0, fastRetry(1))
		vec, err := b.EmbedQuery(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, float32(5), vec[0])
	})

	t.Run("wraps provider failures", func(t *testing.T) {
		fake := &fakeEmbedder{failOn: func(int) error {
			return errors.New("model not found")
		}}
		b := NewBatcher(fake, 4, 0, fastRetry(2))

		_, err := b.EmbedQuery(ctx, "hello")
		var embedErr *models.EmbeddingError
		require.ErrorAs(t, err, &embedErr)
		assert.False(t, embedErr.Transient)
	})
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(context.Canceled))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(errors.New("API returned status code: 503")))
	assert.True(t, IsTransient(errors.New("rate limit exceeded")))
	assert.False(t, IsTransient(errors.New("invalid api key")))
}
