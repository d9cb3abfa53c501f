package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/upb/legal-rag/middleware"
	"github.com/upb/legal-rag/repositories"
	"github.com/upb/legal-rag/utils"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryHandler serves a user's recent query log entries
type HistoryHandler struct {
	queryLogs repositories.QueryLogRepository
	logger    *zap.Logger
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(queryLogs repositories.QueryLogRepository, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{
		queryLogs: queryLogs,
		logger:    logger,
	}
}

// HandleHistory handles GET /api/v1/rag/history
func (h *HistoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	userID := middleware.GetSubjectFromContext(ctx)
	if userID == "" {
		h.logger.Error("missing subject in context",
			zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxHistoryLimit {
			_ = utils.WriteBadRequest(w, "limit must be an integer between 1 and 100", nil)
			return
		}
		limit = parsed
	}

	records, err := h.queryLogs.ListRecentByUser(ctx, userID, limit)
	if err != nil {
		h.logger.Error("failed to list query history",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to load query history")
		return
	}

	if err := utils.WriteOK(w, records); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}
