package index

import (
	"context"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	"docuchat/internal/models"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Entry fields that ride along in chromem document metadata so a
// reopened persistent index can reconstruct full entries from query
// results.
const (
	metaFileName  = "file_name"
	metaFileType  = "file_type"
	metaTitle     = "title"
	metaSourceURL = "source_url"
)

// Local is an embedded hybrid index for single-process deployments:
// chromem-go serves the vector half and an in-process term-frequency
// scorer serves the keyword half. The keyword sidecar lives in memory and
// is populated by Upsert; after a restart of a persistent index, queries
// degrade to vector-only until the next ingestion run, hydrating entries
// from the chromem results themselves.
type Local struct {
	db         *chromem.DB
	collection *chromem.Collection

	mu      sync.RWMutex
	entries map[string]Entry
	tokens  map[string]map[string]int
	docLens map[string]int
}

// NewLocal opens (or creates) a local index. With inMemory set, nothing is
// written to disk; otherwise the collection persists under path.
func NewLocal(path, collectionName string, inMemory bool) (*Local, error) {
	var db *chromem.DB
	var err error
	if inMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, &models.IndexError{Op: "open", Err: err}
		}
	}
	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, &models.IndexError{Op: "open", Err: err}
	}
	return &Local{
		db:         db,
		collection: collection,
		entries:    make(map[string]Entry),
		tokens:     make(map[string]map[string]int),
		docLens:    make(map[string]int),
	}, nil
}

// Upsert writes entries into the collection and the keyword sidecar.
// chromem keys documents by ID, so re-ingesting a file overwrites rather
// than duplicates.
func (l *Local) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		metadata := make(map[string]string, len(e.Metadata)+4)
		for k, v := range e.Metadata {
			metadata[k] = v
		}
		metadata[metaFileName] = e.FileName
		metadata[metaFileType] = e.FileType
		metadata[metaTitle] = e.Title
		metadata[metaSourceURL] = e.SourceURL
		docs[i] = chromem.Document{
			ID:        e.ID,
			Content:   e.Content,
			Metadata:  metadata,
			Embedding: e.Vector,
		}
	}
	if err := l.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return &models.IndexError{Op: "upsert", Err: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		counts := make(map[string]int)
		total := 0
		for _, tok := range tokenPattern.FindAllString(strings.ToLower(e.Content), -1) {
			counts[tok]++
			total++
		}
		l.entries[e.ID] = e
		l.tokens[e.ID] = counts
		l.docLens[e.ID] = total
	}
	return nil
}

// Query fuses the term-frequency keyword ranking with the chromem
// similarity ranking.
func (l *Local) Query(ctx context.Context, text string, vector []float32, topK int, filters map[string]string) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}

	var rankings [][]scoredID
	persisted := make(map[string]Entry)
	if strings.TrimSpace(text) != "" {
		rankings = append(rankings, l.keywordRanking(text, topK, filters))
	}
	if vector != nil {
		vectorRanking, err := l.vectorRanking(ctx, vector, topK, persisted)
		if err != nil {
			return nil, err
		}
		rankings = append(rankings, vectorRanking)
	}

	fused := fuseRankings(rankings...)

	l.mu.RLock()
	defer l.mu.RUnlock()
	hits := make([]Hit, 0, topK)
	for _, s := range fused {
		entry, ok := l.entries[s.id]
		if !ok {
			// not upserted in this process, reconstructed from chromem
			entry, ok = persisted[s.id]
		}
		if !ok || !entry.matches(filters) {
			continue
		}
		hits = append(hits, Hit{Entry: entry, Score: s.score})
		if len(hits) == topK {
			break
		}
	}
	return hits, nil
}

// Count reports the number of documents in the collection.
func (l *Local) Count(ctx context.Context) (int, error) {
	return l.collection.Count(), nil
}

func (l *Local) keywordRanking(text string, topK int, filters map[string]string) []scoredID {
	queryTerms := tokenPattern.FindAllString(strings.ToLower(text), -1)

	l.mu.RLock()
	defer l.mu.RUnlock()

	var scored []scoredID
	for id, counts := range l.tokens {
		if !l.entries[id].matches(filters) {
			continue
		}
		score := 0.0
		for _, term := range queryTerms {
			if n := counts[term]; n > 0 {
				score += float64(n) / float64(l.docLens[id])
			}
		}
		if score > 0 {
			scored = append(scored, scoredID{id: id, score: score})
		}
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].id < scored[j].id
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// vectorRanking queries chromem without a metadata filter; filters are
// applied on the hydrated entries so the nResults bound stays simple.
// Results also land in persisted so hits survive a process restart, when
// the in-memory maps are empty.
func (l *Local) vectorRanking(ctx context.Context, vector []float32, topK int, persisted map[string]Entry) ([]scoredID, error) {
	n := topK
	if count := l.collection.Count(); n > count {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	results, err := l.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       n,
	})
	if err != nil {
		return nil, &models.IndexError{Op: "query", Err: err}
	}

	ranking := make([]scoredID, len(results))
	for i, res := range results {
		ranking[i] = scoredID{id: res.ID, score: float64(res.Similarity)}
		persisted[res.ID] = entryFromResult(res)
	}
	return ranking, nil
}

// entryFromResult rebuilds an entry from a chromem query result, undoing
// the metadata flattening done in Upsert.
func entryFromResult(res chromem.Result) Entry {
	metadata := make(map[string]string, len(res.Metadata))
	for k, v := range res.Metadata {
		metadata[k] = v
	}
	e := Entry{
		ID:        res.ID,
		FileName:  metadata[metaFileName],
		FileType:  metadata[metaFileType],
		Title:     metadata[metaTitle],
		SourceURL: metadata[metaSourceURL],
		Content:   res.Content,
		Vector:    res.Embedding,
		Metadata:  metadata,
	}
	delete(metadata, metaFileName)
	delete(metadata, metaFileType)
	delete(metadata, metaTitle)
	delete(metadata, metaSourceURL)
	return e
}
