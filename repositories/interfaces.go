package repositories

import (
	"context"

	"github.com/upb/legal-rag/models"
)

// ChunkRepository reads the chunk store owned by the ingestion
// subsystem. This service never writes chunks.
type ChunkRepository interface {
	// ListWithEmbeddings returns every chunk that has an embedding, in
	// a stable enumeration order (document_id, chunk_index). Stability
	// matters: it is the tie-break basis for equal similarity scores.
	ListWithEmbeddings(ctx context.Context) ([]models.Chunk, error)
}

// QueryLogRepository persists the append-only query log.
type QueryLogRepository interface {
	// Insert appends a single log record
	Insert(ctx context.Context, rec *models.QueryLogRecord) error

	// ListRecentByUser returns the most recent records for a user,
	// newest first
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]*models.QueryLogRecord, error)
}
