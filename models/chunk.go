package models

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is an immutable unit of ingested document text together with its
// precomputed embedding vector. Chunks are owned by the ingestion
// subsystem; this service only reads them.
type Chunk struct {
	DocumentID uuid.UUID `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Embedding  []float64 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasEmbedding reports whether the chunk carries a usable embedding.
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// RetrievalItem is a scored excerpt produced by the similarity ranker.
// Items are transient and ordered by score descending.
type RetrievalItem struct {
	DocumentID uuid.UUID `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Score      float64   `json:"score"`
	Snippet    string    `json:"snippet"`
}
