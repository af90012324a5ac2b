// Package index provides the hybrid (keyword + vector) document index
// behind retrieval. Two adapters exist: a Postgres-backed one using
// full-text rank plus pgvector distance, and an embedded local one using
// chromem-go. Both fuse the two rankings with reciprocal rank fusion and
// upsert idempotently on entry ID.
package index

import (
	"context"

	"docuchat/internal/models"
)

// Entry is the persisted form of a chunk plus its embedding vector.
type Entry struct {
	ID        string
	FileName  string
	FileType  string
	Title     string
	Content   string
	SourceURL string
	Metadata  map[string]string
	Vector    []float32
}

// Hit is one fused query result.
type Hit struct {
	Entry Entry
	Score float64
}

// Index is the adapter contract against the hybrid search index.
type Index interface {
	// Upsert writes entries, replacing any prior entry with the same ID.
	Upsert(ctx context.Context, entries []Entry) error
	// Query runs a keyword query for text and a similarity query for
	// vector over the same corpus and returns a single fused ranking of
	// at most topK entries. Either side may be skipped by passing an
	// empty text or a nil vector. Filters restrict results by exact
	// match on file_name or file_type.
	Query(ctx context.Context, text string, vector []float32, topK int, filters map[string]string) ([]Hit, error)
	// Count reports the number of persisted entries.
	Count(ctx context.Context) (int, error)
}

// EntryFromChunk pairs a chunk with its vector for upserting.
func EntryFromChunk(c models.Chunk, vector []float32) Entry {
	return Entry{
		ID:        c.ID,
		FileName:  c.FileName,
		FileType:  c.FileType,
		Title:     c.Title,
		Content:   c.Content,
		SourceURL: c.SourceURL,
		Metadata:  c.Metadata,
		Vector:    vector,
	}
}

// Chunk converts a persisted entry back into the retrieval-side chunk.
func (e Entry) Chunk() models.Chunk {
	return models.Chunk{
		ID:        e.ID,
		FileName:  e.FileName,
		FileType:  e.FileType,
		Title:     e.Title,
		Content:   e.Content,
		SourceURL: e.SourceURL,
		Metadata:  e.Metadata,
	}
}

func (e Entry) matches(filters map[string]string) bool {
	for key, want := range filters {
		switch key {
		case "file_name":
			if e.FileName != want {
				return false
			}
		case "file_type":
			if e.FileType != want {
				return false
			}
		default:
			if e.Metadata[key] != want {
				return false
			}
		}
	}
	return true
}
