package model

import (
	"time"
)

// Field names of documents stored in the vector index
const (
	FieldSessionID   = "session_id"
	FieldEmbedding   = "embedding"
	FieldCreatedAt   = "created_at"
	FieldSummaryText = "summary_text"

	FieldPassageText = "passage_text"
	FieldDocID       = "doc_id"
	FieldPassageID   = "passage_id"
)

// MemoryRecord is the long-term memory of one ended session
type MemoryRecord struct {
	SessionID   SessionID
	Embedding   []float32
	CreatedAt   time.Time
	SummaryText string
}

// Document converts the record into the index document. created_at is stored as epoch milliseconds.
func (r *MemoryRecord) Document() map[string]any {
	return map[string]any{
		FieldSessionID:   string(r.SessionID),
		FieldEmbedding:   r.Embedding,
		FieldCreatedAt:   r.CreatedAt.UnixMilli(),
		FieldSummaryText: r.SummaryText,
	}
}

// Passage is a chunk of the verified knowledge corpus
type Passage struct {
	DocID     string
	PassageID string
	Text      string
}

// Hit is one result of a k-NN search. Source holds the stored fields of the matched document.
type Hit struct {
	ID     string
	Score  float64
	Source map[string]any
}

// UpsertResult reports the outcome of a write to the vector index
type UpsertResult struct {
	Index      string
	ID         string
	StatusCode int
	Err        error
}

// OK returns true if the write was accepted
func (r *UpsertResult) OK() bool {
	return r != nil && r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}
