package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AnswerRequest is the validated inbound request for the ask operation.
// Zero-valued K and MaxContextTokens are filled with configured defaults
// at the boundary before validation.
type AnswerRequest struct {
	Query            string `json:"query" validate:"required,min=1,max=1000"`
	K                int    `json:"k" validate:"required,gte=1,lte=20"`
	MaxContextTokens int    `json:"max_context_tokens" validate:"required,gte=100,lte=8000"`
	Model            string `json:"model,omitempty" validate:"omitempty,max=50"`
}

// Citation is a retrieval item that survived context budgeting, exposed
// to the caller in budgeted order.
type Citation struct {
	DocumentID uuid.UUID `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Snippet    string    `json:"snippet"`
	Score      float64   `json:"score"`
}

// AnswerResponse is the final answer with citations and cost accounting.
// Cached copies differ from the stored entry only in the Cached flag.
type AnswerResponse struct {
	Answer    string          `json:"answer"`
	Citations []Citation      `json:"citations"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	TokensIn  int             `json:"tokens_in"`
	TokensOut int             `json:"tokens_out"`
	Cost      decimal.Decimal `json:"cost_usd"`
	LatencyMs int64           `json:"latency_ms"`
	Cached    bool            `json:"cached"`
}

// CitationFromItem converts a budgeted retrieval item into a citation.
func CitationFromItem(item RetrievalItem) Citation {
	return Citation{
		DocumentID: item.DocumentID,
		ChunkIndex: item.ChunkIndex,
		Snippet:    item.Snippet,
		Score:      item.Score,
	}
}
