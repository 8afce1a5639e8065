package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/huzzy12/Andrew-Wilkinson-AI/repositories"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services"
	"github.com/huzzy12/Andrew-Wilkinson-AI/utils"
	"go.uber.org/zap"
)

const (
	defaultQueryLogLimit = 20
	maxQueryLogLimit     = 100
)

// QueryLogHandler reads the query audit trail
type QueryLogHandler struct {
	repo   repositories.QueryLogRepository
	logger *zap.Logger
}

// NewQueryLogHandler creates a new QueryLogHandler. repo is nil when the
// audit trail is disabled.
func NewQueryLogHandler(repo repositories.QueryLogRepository, logger *zap.Logger) *QueryLogHandler {
	return &QueryLogHandler{
		repo:   repo,
		logger: logger,
	}
}

// HandleList handles GET /api/v1/queries. With request_id it returns the
// record written for that request; otherwise the newest records, paged by
// limit and offset.
func (h *QueryLogHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		HandleServiceError(w, services.ErrAuditDisabled, h.logger)
		return
	}

	ctx := r.Context()
	query := r.URL.Query()

	if requestID := query.Get("request_id"); requestID != "" {
		log, err := h.repo.GetByRequestID(ctx, requestID)
		if errors.Is(err, repositories.ErrNotFound) {
			_ = utils.WriteNotFound(w, "no query recorded for this request id")
			return
		}
		if err != nil {
			HandleServiceError(w, services.ErrDatabaseError.Wrap(err), h.logger)
			return
		}
		if err := utils.WriteOK(w, log); err != nil {
			h.logger.Error("failed to write response", zap.Error(err))
		}
		return
	}

	limit, err := intParam(query.Get("limit"), defaultQueryLogLimit)
	if err != nil || limit < 1 || limit > maxQueryLogLimit {
		_ = utils.WriteBadRequest(w, "limit must be between 1 and 100", map[string]interface{}{"limit": query.Get("limit")})
		return
	}
	offset, err := intParam(query.Get("offset"), 0)
	if err != nil || offset < 0 {
		_ = utils.WriteBadRequest(w, "offset must be a non-negative integer", map[string]interface{}{"offset": query.Get("offset")})
		return
	}

	logs, err := h.repo.ListRecent(ctx, limit, offset)
	if err != nil {
		HandleServiceError(w, services.ErrDatabaseError.Wrap(err), h.logger)
		return
	}

	if err := utils.WriteOK(w, map[string]interface{}{
		"queries": logs,
		"limit":   limit,
		"offset":  offset,
	}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
