package precompute

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/helmavik/embedfall/config"
)

// Store writes embedded documents to a Postgres table with a pgvector column.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
	dims   int
}

// NewStore connects, verifies the pgvector extension, and ensures the
// document_embeddings table exists with the requested dimensionality.
func NewStore(cfg config.StoreConfig, dims int, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	s := &Store{db: db, logger: logger, dims: dims}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("enabling pgvector extension: %w", err)
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS document_embeddings (
			id BIGSERIAL PRIMARY KEY,
			doc_id TEXT NOT NULL UNIQUE,
			text TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.dims)
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating document_embeddings table: %w", err)
	}
	return nil
}

// WriteBatch inserts records in a single transaction, skipping documents
// already present. Returns the number of rows actually inserted.
func (s *Store) WriteBatch(records []EmbeddedRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`
		INSERT INTO document_embeddings (doc_id, text, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (doc_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, rec := range records {
		res, err := stmt.Exec(rec.DocID, rec.Text, formatEmbedding(rec.Embedding))
		if err != nil {
			return inserted, fmt.Errorf("inserting document %s: %w", rec.DocID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("committing batch: %w", err)
	}
	return inserted, nil
}

// CreateIndex builds an approximate-nearest-neighbor index over the
// embedding column. Meant to run once after a bulk load.
func (s *Store) CreateIndex() error {
	s.logger.Info("creating vector index, this can take a while")
	_, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS document_embeddings_embedding_idx
		ON document_embeddings USING hnsw (embedding vector_cosine_ops)`)
	if err != nil {
		return fmt.Errorf("creating vector index: %w", err)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.Get(&n, `SELECT COUNT(*) FROM document_embeddings`); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error { return s.db.Close() }

// formatEmbedding renders a vector in pgvector's text input format.
func formatEmbedding(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
