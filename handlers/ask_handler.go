package handlers

import (
	"context"
	"net/http"

	"github.com/huzzy12/Andrew-Wilkinson-AI/middleware"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/retrieval"
	"github.com/huzzy12/Andrew-Wilkinson-AI/utils"
	"go.uber.org/zap"
)

// AskRequest is the body of POST /api/v1/ask
type AskRequest struct {
	Query string `json:"query" validate:"notblank,max=2000"`
}

// AnswerService answers questions over the newsletter archive
type AnswerService interface {
	Answer(ctx context.Context, query string) (*retrieval.Answer, error)
}

// AskHandler handles question requests
type AskHandler struct {
	service AnswerService
	logger  *zap.Logger
}

// NewAskHandler creates a new AskHandler
func NewAskHandler(service AnswerService, logger *zap.Logger) *AskHandler {
	return &AskHandler{
		service: service,
		logger:  logger,
	}
}

// HandleAsk handles POST /api/v1/ask
func (h *AskHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req AskRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.logger.Debug("invalid ask request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	answer, err := h.service.Answer(ctx, req.Query)
	if err != nil {
		h.logger.Warn("question failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	if answer.Degraded {
		h.logger.Info("question answered in degraded mode",
			zap.String("request_id", requestID),
			zap.String("backend", answer.Backend))
	}

	if err := utils.WriteOK(w, answer); err != nil {
		h.logger.Error("failed to write answer response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}
