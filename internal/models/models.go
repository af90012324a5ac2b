package models

// Chat roles stored in session history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chunk is the smallest retrievable unit of document text plus metadata.
// The ID is derived from the source file and the chunk position, so
// re-ingesting the same file produces the same IDs and overwrites prior
// content instead of duplicating it.
type Chunk struct {
	ID        string            `json:"id"`
	FileName  string            `json:"file_name"`
	FileType  string            `json:"file_type"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	SourceURL string            `json:"source_url"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// RetrievalResult pairs a chunk with its fused keyword+vector relevance
// score for one query.
type RetrievalResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Citation maps an ordinal marker in an assembled context (and in the
// generated answer) back to the source document it came from.
type Citation struct {
	Ordinal   int    `json:"ordinal"`
	FileName  string `json:"file_name"`
	SourceURL string `json:"source_url"`
}

// ChatMessage is one turn of a chat session, immutable once appended.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Answer is the result of one chat turn: the generated text and the
// citations it actually references.
type Answer struct {
	Answer  string     `json:"answer"`
	Sources []Citation `json:"sources"`
}
