package index

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS workorder_chunks (
	chunk_id    TEXT NOT NULL,
	document_id TEXT NOT NULL,
	ordinal     INTEGER NOT NULL,
	content     TEXT NOT NULL,
	metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,
	embedding   REAL[] NOT NULL,
	PRIMARY KEY (document_id, ordinal)
)`

// PostgresStore keeps chunks in a shared Postgres database
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and migrates the chunk table
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// ReplaceDocument deletes the document's chunks and inserts the new set
func (s *PostgresStore) ReplaceDocument(ctx context.Context, documentID string, chunks []Chunk) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM workorder_chunks WHERE document_id = $1`, documentID); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		batch := &pgx.Batch{}
		for _, c := range chunks {
			meta := c.Metadata
			if meta == nil {
				meta = map[string]string{}
			}
			batch.Queue(
				`INSERT INTO workorder_chunks (chunk_id, document_id, ordinal, content, metadata, embedding) VALUES ($1, $2, $3, $4, $5, $6)`,
				c.ID, documentID, c.Ordinal, c.Content, meta, c.Embedding)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return nil
	})
}

// Chunks loads every stored chunk in document order
func (s *PostgresStore) Chunks(ctx context.Context) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT chunk_id, document_id, ordinal, content, metadata, embedding FROM workorder_chunks ORDER BY document_id, ordinal`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Content, &c.Metadata, &c.Embedding); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
