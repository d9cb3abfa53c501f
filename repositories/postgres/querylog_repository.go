package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/legal-rag/models"
	"github.com/upb/legal-rag/repositories"
)

// QueryLogRepository implements the repositories.QueryLogRepository interface
type QueryLogRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewQueryLogRepository creates a new query log repository
func NewQueryLogRepository(db *DB, logger *zap.Logger) repositories.QueryLogRepository {
	return &QueryLogRepository{
		db:     db,
		logger: logger,
	}
}

// Insert appends a single log record
func (r *QueryLogRepository) Insert(ctx context.Context, rec *models.QueryLogRecord) error {
	query := `
		INSERT INTO query_logs (
			id, user_id, query, provider, model, tokens_in, tokens_out,
			cost_usd, latency_ms, cached, failed, error_code, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.Query,
		rec.Provider,
		rec.Model,
		rec.TokensIn,
		rec.TokensOut,
		rec.Cost,
		rec.LatencyMs,
		rec.Cached,
		rec.Failed,
		rec.ErrorCode,
		rec.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert query log record: %w", err)
	}

	r.logger.Debug("query log record inserted", zap.String("id", rec.ID.String()))
	return nil
}

// ListRecentByUser returns the most recent records for a user, newest first
func (r *QueryLogRepository) ListRecentByUser(ctx context.Context, userID string, limit int) ([]*models.QueryLogRecord, error) {
	query := `
		SELECT id, user_id, query, provider, model, tokens_in, tokens_out,
		       cost_usd, latency_ms, cached, failed, error_code, created_at
		FROM query_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list query log records: %w", err)
	}
	defer rows.Close()

	var records []*models.QueryLogRecord
	for rows.Next() {
		rec := &models.QueryLogRecord{}
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Query,
			&rec.Provider,
			&rec.Model,
			&rec.TokensIn,
			&rec.TokensOut,
			&rec.Cost,
			&rec.LatencyMs,
			&rec.Cached,
			&rec.Failed,
			&rec.ErrorCode,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan query log record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate query log records: %w", err)
	}

	return records, nil
}
