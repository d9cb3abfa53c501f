package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QueryLogRecord is an append-only log entry written once per served
// request. Failed requests are recorded too, with zeroed usage fields
// and the taxonomy code in ErrorCode, so aggregated metrics reflect the
// full traffic rather than only successes.
type QueryLogRecord struct {
	ID        uuid.UUID       `json:"id"`
	UserID    string          `json:"user_id"`
	Query     string          `json:"query"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	TokensIn  int             `json:"tokens_in"`
	TokensOut int             `json:"tokens_out"`
	Cost      decimal.Decimal `json:"cost_usd"`
	LatencyMs int64           `json:"latency_ms"`
	Cached    bool            `json:"cached"`
	Failed    bool            `json:"failed"`
	ErrorCode *string         `json:"error_code,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewQueryLogRecord creates a log record for a successfully served
// answer (computed or cache hit).
func NewQueryLogRecord(userID string, query string, resp *AnswerResponse) *QueryLogRecord {
	return &QueryLogRecord{
		ID:        uuid.New(),
		UserID:    userID,
		Query:     query,
		Provider:  resp.Provider,
		Model:     resp.Model,
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
		Cost:      resp.Cost,
		LatencyMs: resp.LatencyMs,
		Cached:    resp.Cached,
		CreatedAt: time.Now().UTC(),
	}
}

// NewFailedQueryLogRecord creates a log record for a request that
// terminated before an answer was produced.
func NewFailedQueryLogRecord(userID string, query string, model string, errorCode string, latencyMs int64) *QueryLogRecord {
	return &QueryLogRecord{
		ID:        uuid.New(),
		UserID:    userID,
		Query:     query,
		Model:     model,
		Cost:      decimal.Zero,
		LatencyMs: latencyMs,
		Failed:    true,
		ErrorCode: &errorCode,
		CreatedAt: time.Now().UTC(),
	}
}
