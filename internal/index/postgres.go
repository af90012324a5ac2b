package index

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"docuchat/internal/config"
	"docuchat/internal/models"
)

type entryRow struct {
	bun.BaseModel `bun:"table:index_entries,alias:ie"`
	ID            string            `bun:"id,pk"`
	FileName      string            `bun:"file_name,notnull"`
	FileType      string            `bun:"file_type,notnull"`
	Title         string            `bun:"title"`
	Content       string            `bun:"content,notnull"`
	SourceURL     string            `bun:"source_url"`
	Metadata      map[string]string `bun:"metadata,type:jsonb"`
	Vector        []float32         `bun:"content_vector,notnull,type:vector(768)"`
}

// Postgres is the hybrid index backed by Postgres full-text search and
// pgvector similarity.
type Postgres struct {
	db *bun.DB
}

// ConnectDB opens the Postgres connection for the index.
func ConnectDB(cfg *config.IndexConfig) *sql.DB {
	dsn := cfg.DSN
	if !strings.Contains(dsn, "sslmode") {
		dsn += "?sslmode=disable"
	}
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
}

// NewPostgres wraps an open connection in the index adapter.
func NewPostgres(sqldb *sql.DB, debug bool) *Postgres {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return &Postgres{db: db}
}

// Init creates the entries table if it does not exist.
func (p *Postgres) Init(ctx context.Context) error {
	if _, err := p.db.NewCreateTable().Model((*entryRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return &models.IndexError{Op: "init", Err: err}
	}
	return nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Upsert writes entries, replacing prior content on ID conflict so
// re-ingesting a file never duplicates rows.
func (p *Postgres) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]entryRow, len(entries))
	for i, e := range entries {
		rows[i] = entryRow{
			ID:        e.ID,
			FileName:  e.FileName,
			FileType:  e.FileType,
			Title:     e.Title,
			Content:   e.Content,
			SourceURL: e.SourceURL,
			Metadata:  e.Metadata,
			Vector:    e.Vector,
		}
	}
	_, err := p.db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("file_name = EXCLUDED.file_name").
		Set("file_type = EXCLUDED.file_type").
		Set("title = EXCLUDED.title").
		Set("content = EXCLUDED.content").
		Set("source_url = EXCLUDED.source_url").
		Set("metadata = EXCLUDED.metadata").
		Set("content_vector = EXCLUDED.content_vector").
		Exec(ctx)
	if err != nil {
		return &models.IndexError{Op: "upsert", Err: err}
	}
	return nil
}

// Query runs the keyword-ranked and vector-ordered selects and fuses them
// into one ranking of at most topK entries.
func (p *Postgres) Query(ctx context.Context, text string, vector []float32, topK int, filters map[string]string) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}

	byID := make(map[string]entryRow)
	var rankings [][]scoredID

	if strings.TrimSpace(text) != "" {
		var kwRows []entryRow
		q := p.db.NewSelect().
			Model(&kwRows).
			Where("to_tsvector('english', content) @@ plainto_tsquery('english', ?)", text).
			OrderExpr("ts_rank_cd(to_tsvector('english', content), plainto_tsquery('english', ?)) DESC", text).
			OrderExpr("id ASC").
			Limit(topK)
		if err := applyFilters(q, filters).Scan(ctx); err != nil {
			return nil, &models.IndexError{Op: "query", Err: err}
		}
		rankings = append(rankings, rankOf(kwRows, byID))
	}

	if vector != nil {
		var vecRows []entryRow
		q := p.db.NewSelect().
			Model(&vecRows).
			OrderExpr("content_vector <-> ?", vector).
			Limit(topK)
		if err := applyFilters(q, filters).Scan(ctx); err != nil {
			return nil, &models.IndexError{Op: "query", Err: err}
		}
		rankings = append(rankings, rankOf(vecRows, byID))
	}

	fused := fuseRankings(rankings...)
	if len(fused) > topK {
		fused = fused[:topK]
	}

	hits := make([]Hit, 0, len(fused))
	for _, s := range fused {
		row := byID[s.id]
		hits = append(hits, Hit{
			Entry: Entry{
				ID:        row.ID,
				FileName:  row.FileName,
				FileType:  row.FileType,
				Title:     row.Title,
				Content:   row.Content,
				SourceURL: row.SourceURL,
				Metadata:  row.Metadata,
				Vector:    row.Vector,
			},
			Score: s.score,
		})
	}
	return hits, nil
}

// Count reports the number of persisted entries.
func (p *Postgres) Count(ctx context.Context) (int, error) {
	n, err := p.db.NewSelect().Model((*entryRow)(nil)).Count(ctx)
	if err != nil {
		return 0, &models.IndexError{Op: "count", Err: err}
	}
	return n, nil
}

func applyFilters(q *bun.SelectQuery, filters map[string]string) *bun.SelectQuery {
	for key, value := range filters {
		switch key {
		case "file_name", "file_type":
			q = q.Where("? = ?", bun.Ident(key), value)
		default:
			q = q.Where("metadata ->> ? = ?", key, value)
		}
	}
	return q
}

func rankOf(rows []entryRow, byID map[string]entryRow) []scoredID {
	ranking := make([]scoredID, len(rows))
	for i, row := range rows {
		byID[row.ID] = row
		ranking[i] = scoredID{id: row.ID}
	}
	return ranking
}
