package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/legal-rag/config"
	"github.com/upb/legal-rag/middleware"
	"github.com/upb/legal-rag/models"
	"github.com/upb/legal-rag/utils"
)

// AnswerService defines the interface for the ask operation
type AnswerService interface {
	// Ask answers a question for the given user
	Ask(ctx context.Context, userID string, req *models.AnswerRequest) (*models.AnswerResponse, error)
}

// AskHandler handles question-answering HTTP requests
type AskHandler struct {
	service   AnswerService
	retrieval config.RetrievalConfig
	logger    *zap.Logger
}

// NewAskHandler creates a new AskHandler
func NewAskHandler(service AnswerService, retrieval config.RetrievalConfig, logger *zap.Logger) *AskHandler {
	return &AskHandler{
		service:   service,
		retrieval: retrieval,
		logger:    logger,
	}
}

// HandleAsk handles POST /api/v1/rag/ask
func (h *AskHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	userID := middleware.GetSubjectFromContext(ctx)
	if userID == "" {
		h.logger.Error("missing subject in context",
			zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req models.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	// Fill omitted knobs with configured defaults before validation
	if req.K == 0 {
		req.K = h.retrieval.DefaultK
	}
	if req.MaxContextTokens == 0 {
		req.MaxContextTokens = h.retrieval.DefaultMaxContextTokens
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	h.logger.Debug("processing question",
		zap.String("request_id", requestID),
		zap.String("user_id", userID),
		zap.Int("k", req.K),
		zap.Int("max_context_tokens", req.MaxContextTokens))

	resp, err := h.service.Ask(ctx, userID, &req)
	if err != nil {
		h.logger.Error("failed to answer question",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("question answered",
		zap.String("request_id", requestID),
		zap.String("provider", resp.Provider),
		zap.String("model", resp.Model),
		zap.Int("citations", len(resp.Citations)),
		zap.Bool("cached", resp.Cached),
		zap.Int64("latency_ms", resp.LatencyMs))

	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}
