package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/upb/legal-rag/models"
	"github.com/upb/legal-rag/repositories"
)

// ChunkRepository implements the repositories.ChunkRepository interface
type ChunkRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewChunkRepository creates a new chunk repository
func NewChunkRepository(db *DB, logger *zap.Logger) repositories.ChunkRepository {
	return &ChunkRepository{
		db:     db,
		logger: logger,
	}
}

// ListWithEmbeddings returns all chunks that carry an embedding,
// ordered by (document_id, chunk_index). The ORDER BY is load-bearing:
// equal-score ranking ties are broken by this enumeration order.
func (r *ChunkRepository) ListWithEmbeddings(ctx context.Context) ([]models.Chunk, error) {
	query := `
		SELECT document_id, chunk_index, content, embedding, created_at
		FROM document_chunks
		WHERE embedding IS NOT NULL
		ORDER BY document_id, chunk_index
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		var embedding pq.Float64Array
		if err := rows.Scan(
			&chunk.DocumentID,
			&chunk.ChunkIndex,
			&chunk.Content,
			&embedding,
			&chunk.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunk.Embedding = []float64(embedding)
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	r.logger.Debug("listed chunks with embeddings", zap.Int("count", len(chunks)))
	return chunks, nil
}
