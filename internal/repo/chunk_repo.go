package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/ragline/ragline/internal/model"
)

// ChunkRepo is the vector store: it persists (text, embedding) pairs and
// answers nearest-neighbor queries. Distance is cosine (`<=>`), matching the
// sentence-transformer embedding space.
type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

func (r *ChunkRepo) Insert(ctx context.Context, chunk *model.KnowledgeChunk) error {
	const query = `
		INSERT INTO knowledge_chunks (content, embedding, file_name)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		chunk.Content,
		pgvector.NewVector(chunk.Embedding),
		chunk.FileName,
	).Scan(&chunk.ID)
}

// QueryNearest returns up to k chunks ordered by ascending cosine distance
// from vec. An empty corpus yields an empty slice, not an error.
func (r *ChunkRepo) QueryNearest(ctx context.Context, vec []float32, k int) ([]model.KnowledgeChunk, error) {
	const query = `
		SELECT id, content, embedding, file_name
		FROM knowledge_chunks
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.KnowledgeChunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *chunk)
	}
	return items, rows.Err()
}

func (r *ChunkRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_chunks`).Scan(&count)
	return count, err
}

// Dimension reads the declared dimensionality of the embedding column, so
// startup can reject a provider whose vectors would not fit.
func (r *ChunkRepo) Dimension(ctx context.Context) (int, error) {
	const query = `
		SELECT atttypmod
		FROM pg_attribute
		WHERE attrelid = 'knowledge_chunks'::regclass AND attname = 'embedding'
	`
	var dim int
	if err := r.db.QueryRowContext(ctx, query).Scan(&dim); err != nil {
		return 0, fmt.Errorf("read embedding dimension: %w", err)
	}
	return dim, nil
}

// ListZeroEmbedded returns chunks whose embedding degraded to the zero
// vector during ingestion.
func (r *ChunkRepo) ListZeroEmbedded(ctx context.Context, dim, limit int) ([]model.KnowledgeChunk, error) {
	const query = `
		SELECT id, content, embedding, file_name
		FROM knowledge_chunks
		WHERE embedding = $1
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(make([]float32, dim)), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.KnowledgeChunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *chunk)
	}
	return items, rows.Err()
}

// UpdateEmbedding replaces a degraded embedding. Chunk text never changes;
// content updates are modeled as delete plus reinsert.
func (r *ChunkRepo) UpdateEmbedding(ctx context.Context, id int64, vec []float32) error {
	const query = `UPDATE knowledge_chunks SET embedding = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, pgvector.NewVector(vec), id)
	return err
}

func scanChunk(rows *sql.Rows) (*model.KnowledgeChunk, error) {
	var chunk model.KnowledgeChunk
	var embedding pgvector.Vector
	if err := rows.Scan(&chunk.ID, &chunk.Content, &embedding, &chunk.FileName); err != nil {
		return nil, err
	}
	chunk.Embedding = embedding.Slice()
	return &chunk, nil
}
