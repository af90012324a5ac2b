// Package retriever turns a natural-language question into a ranked set of
// relevant chunks via the hybrid index.
package retriever

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"docuchat/internal/embedding"
	"docuchat/internal/index"
	"docuchat/internal/models"
)

const defaultTopK = 10

type Retriever struct {
	batcher *embedding.Batcher
	index   index.Index
	// dedupeByFile keeps only the best-ranked chunk per file to avoid
	// citation clutter
	dedupeByFile bool
}

func New(batcher *embedding.Batcher, idx index.Index, dedupeByFile bool) *Retriever {
	return &Retriever{batcher: batcher, index: idx, dedupeByFile: dedupeByFile}
}

// Retrieve embeds the question, runs the hybrid query and returns at most
// topK results in strictly descending score order with ties broken by
// ascending chunk ID. An empty index yields an empty slice, not an error;
// an embedding failure yields a *models.RetrievalError rather than a
// silent keyword-only fallback.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int) ([]models.RetrievalResult, error) {
	question = strings.TrimSpace(question)
	if topK <= 0 {
		topK = defaultTopK
	}

	vector, err := r.batcher.EmbedQuery(ctx, question)
	if err != nil {
		return nil, &models.RetrievalError{Err: err}
	}

	limit := topK
	if r.dedupeByFile {
		// over-fetch so deduplication can still fill topK
		limit = topK * 3
	}
	hits, err := r.index.Query(ctx, question, vector, limit, nil)
	if err != nil {
		return nil, &models.RetrievalError{Err: err}
	}
	log.Debug().Str("question", question).Int("hits", len(hits)).Msg("Hybrid query done")

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Entry.ID < hits[j].Entry.ID
	})

	results := make([]models.RetrievalResult, 0, topK)
	seenFiles := make(map[string]bool)
	for _, hit := range hits {
		if r.dedupeByFile {
			if seenFiles[hit.Entry.FileName] {
				continue
			}
			seenFiles[hit.Entry.FileName] = true
		}
		results = append(results, models.RetrievalResult{Chunk: hit.Entry.Chunk(), Score: hit.Score})
		if len(results) == topK {
			break
		}
	}
	return results, nil
}
