package embedding

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"docuchat/internal/models"
)

const (
	defaultBatchSize    = 16
	defaultMaxItemChars = 30000
)

// Batcher converts ordered text sequences into embedding vectors through an
// Embedder, grouping items into batches to amortize round-trips and
// retrying transient provider failures with exponential backoff.
type Batcher struct {
	embedder     Embedder
	batchSize    int
	maxItemChars int
	retry        RetryPolicy
}

func NewBatcher(embedder Embedder, batchSize, maxItemChars int, retry RetryPolicy) *Batcher {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if maxItemChars <= 0 {
		maxItemChars = defaultMaxItemChars
	}
	return &Batcher{
		embedder:     embedder,
		batchSize:    batchSize,
		maxItemChars: maxItemChars,
		retry:        retry.withDefaults(),
	}
}

// EmbedTexts embeds texts in input order. The returned slice is always
// index-aligned with the input: items of a failed batch have a nil vector
// and the batch failure is reported in the second return value, leaving
// the remaining batches unaffected. The error return is non-nil only when
// the context ends the whole call.
func (b *Batcher) EmbedTexts(ctx context.Context, texts []string) ([][]float32, []*models.EmbeddingError, error) {
	vectors := make([][]float32, len(texts))
	var failures []*models.EmbeddingError

	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := make([]string, end-start)
		for i, text := range texts[start:end] {
			batch[i] = truncate(text, b.maxItemChars)
		}

		vecs, err := b.embedBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			failures = append(failures, &models.EmbeddingError{
				Start:     start,
				End:       end,
				Transient: IsTransient(err),
				Err:       err,
			})
			continue
		}
		copy(vectors[start:end], vecs)
	}
	return vectors, failures, nil
}

// EmbedQuery embeds a single query text with the same retry behavior as a
// one-item batch.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := b.withRetry(ctx, func() error {
		var embedErr error
		vec, embedErr = b.embedder.EmbedQuery(ctx, truncate(text, b.maxItemChars))
		return embedErr
	})
	if err != nil {
		return nil, &models.EmbeddingError{End: 1, Transient: IsTransient(err), Err: err}
	}
	return vec, nil
}

func (b *Batcher) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var vecs [][]float32
	err := b.withRetry(ctx, func() error {
		var embedErr error
		vecs, embedErr = b.embedder.EmbedDocuments(ctx, batch)
		return embedErr
	})
	if err != nil {
		return nil, err
	}
	// a misaligned response would silently attach vectors to the wrong chunks
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(batch))
	}
	return vecs, nil
}

func (b *Batcher) withRetry(ctx context.Context, call func() error) error {
	var err error
	for attempt := 0; attempt < b.retry.MaxAttempts; attempt++ {
		if err = call(); err == nil {
			return nil
		}
		if !IsTransient(err) || attempt == b.retry.MaxAttempts-1 {
			return err
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("Transient embedding failure, retrying")
		if sleepErr := b.retry.sleep(ctx, attempt); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

func truncate(text string, maxChars int) string {
	if len(text) > maxChars {
		return text[:maxChars]
	}
	return text
}
