package models

import "fmt"

// ParseError reports a document that could not be read or understood.
// Ingestion treats it as a per-file failure and continues with the
// remaining files.
type ParseError struct {
	FileName string
	Err      error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.FileName, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// EmbeddingError reports a failed embedding batch. Start and End give the
// half-open input range the failure is attributed to; other batches of the
// same call are unaffected. Transient failures have already been retried
// when this error is returned.
type EmbeddingError struct {
	Start     int
	End       int
	Transient bool
	Err       error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embed items [%d,%d): %v", e.Start, e.End, e.Err)
}
func (e *EmbeddingError) Unwrap() error { return e.Err }

// IndexError reports a failed index operation ("upsert", "query" or
// "count").
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string { return fmt.Sprintf("index %s: %v", e.Op, e.Err) }
func (e *IndexError) Unwrap() error { return e.Err }

// RetrievalError wraps a failure while turning a question into ranked
// chunks. An empty index is not an error; callers get an empty result
// list instead.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string { return fmt.Sprintf("retrieve: %v", e.Err) }
func (e *RetrievalError) Unwrap() error { return e.Err }

// GenerationError reports a completion-provider failure. It is terminal
// for the current chat turn; no history is appended for a failed turn.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("generate: %v", e.Err) }
func (e *GenerationError) Unwrap() error { return e.Err }

// ValidationError reports rejected caller input, e.g. an empty question.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }
