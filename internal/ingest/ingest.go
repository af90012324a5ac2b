// Package ingest walks a document directory and pushes its contents
// through the parse → embed → upsert pipeline. Failures are isolated: a
// bad file or a failed embedding batch never aborts the run.
package ingest

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"docuchat/internal/embedding"
	"docuchat/internal/index"
	"docuchat/internal/parser"
)

// FileFailure records one file an ingestion run could not index.
type FileFailure struct {
	FileName string `json:"file_name"`
	Reason   string `json:"reason"`
}

// Report summarizes an ingestion run.
type Report struct {
	FilesProcessed int           `json:"files_processed"`
	ChunksCreated  int           `json:"chunks_created"`
	FilesFailed    []FileFailure `json:"files_failed"`
}

// Options configures an ingestion run.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	// Workers bounds how many files are processed concurrently.
	Workers int
	// SourceBaseURL is prepended to the escaped file name to form each
	// chunk's source URL for citations.
	SourceBaseURL string
}

type Ingestor struct {
	batcher *embedding.Batcher
	index   index.Index
	opts    Options
}

func New(batcher *embedding.Batcher, idx index.Index, opts Options) *Ingestor {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Ingestor{batcher: batcher, index: idx, opts: opts}
}

// IngestDirectory indexes every supported file directly under dir.
// Files are fanned out to a bounded worker pool; chunk upserts are
// idempotent on chunk ID, so re-running over the same directory replaces
// prior content instead of duplicating it.
func (ing *Ingestor) IngestDirectory(ctx context.Context, dir string) (*Report, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	paths := make(chan string)
	var wg sync.WaitGroup
	var mu sync.Mutex
	report := &Report{}

	for w := 0; w < ing.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range paths {
				n, err := ing.ingestFile(ctx, path)
				mu.Lock()
				if err != nil {
					report.FilesFailed = append(report.FilesFailed, FileFailure{
						FileName: filepath.Base(path),
						Reason:   err.Error(),
					})
				} else {
					report.FilesProcessed++
					report.ChunksCreated += n
				}
				mu.Unlock()
			}
		}()
	}

	for _, entry := range dirEntries {
		if entry.IsDir() || skipName(entry.Name()) {
			continue
		}
		select {
		case paths <- filepath.Join(dir, entry.Name()):
		case <-ctx.Done():
			close(paths)
			wg.Wait()
			return report, ctx.Err()
		}
	}
	close(paths)
	wg.Wait()

	sort.Slice(report.FilesFailed, func(i, j int) bool {
		return report.FilesFailed[i].FileName < report.FilesFailed[j].FileName
	})
	log.Info().
		Int("files_processed", report.FilesProcessed).
		Int("chunks_created", report.ChunksCreated).
		Int("files_failed", len(report.FilesFailed)).
		Msg("Ingestion run finished")
	return report, nil
}

// ingestFile parses, embeds and upserts one file, returning how many
// chunks were indexed.
func (ing *Ingestor) ingestFile(ctx context.Context, path string) (int, error) {
	fileName := filepath.Base(path)
	log.Info().Str("file", fileName).Msg("Processing")

	chunks, err := parser.Parse(path, parser.Options{
		ChunkSize:    ing.opts.ChunkSize,
		ChunkOverlap: ing.opts.ChunkOverlap,
	})
	if err != nil {
		log.Warn().Err(err).Str("file", fileName).Msg("Skipping unreadable file")
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, failures, err := ing.batcher.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, err
	}
	for _, f := range failures {
		log.Warn().Err(f).Str("file", fileName).Msg("Embedding batch failed, dropping its chunks")
	}

	sourceURL := ing.sourceURL(fileName)
	entries := make([]index.Entry, 0, len(chunks))
	for i, c := range chunks {
		if vectors[i] == nil {
			continue
		}
		c.SourceURL = sourceURL
		entries = append(entries, index.EntryFromChunk(c, vectors[i]))
	}
	if len(entries) == 0 && len(failures) > 0 {
		// nothing survived embedding; report the file as failed
		return 0, failures[0]
	}

	if err := ing.index.Upsert(ctx, entries); err != nil {
		return 0, err
	}
	log.Info().Str("file", fileName).Int("chunks", len(entries)).Msg("Indexed")
	return len(entries), nil
}

func (ing *Ingestor) sourceURL(fileName string) string {
	if ing.opts.SourceBaseURL == "" {
		return ""
	}
	return strings.TrimRight(ing.opts.SourceBaseURL, "/") + "/" + url.PathEscape(fileName)
}

// skipName filters dot-files and OS metadata streams (Zone.Identifier and
// the like) out of the run.
func skipName(name string) bool {
	return strings.HasPrefix(name, ".") || strings.Contains(name, ":")
}
