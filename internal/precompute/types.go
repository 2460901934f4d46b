// Package precompute bulk-embeds document corpora into a pgvector-backed
// table so query-time lookups can skip inference entirely.
package precompute

import "time"

// Record is a single document to embed.
type Record struct {
	DocID string `json:"doc_id" parquet:"doc_id"`
	Text  string `json:"text" parquet:"text"`
}

// Options controls a pipeline run.
type Options struct {
	BatchSize     int
	CreateIndex   bool
	ProgressEvery int
}

// Result summarizes a completed pipeline run.
type Result struct {
	TotalRecords int
	Embedded     int
	Skipped      int
	Duration     time.Duration
}

// EmbeddedRecord pairs a document with its computed vector.
type EmbeddedRecord struct {
	DocID     string
	Text      string
	Embedding []float32
}

// VectorWriter persists embedded records. *Store implements it against
// Postgres; tests substitute an in-memory writer.
type VectorWriter interface {
	WriteBatch(records []EmbeddedRecord) (int, error)
}
