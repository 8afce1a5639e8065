package handlers

import (
	"errors"
	"net/http"

	"github.com/huzzy12/Andrew-Wilkinson-AI/services"
	"github.com/huzzy12/Andrew-Wilkinson-AI/utils"
	"go.uber.org/zap"
)

// retryAfterSeconds is advertised while the index is being built.
const retryAfterSeconds = "30"

// HandleServiceError maps domain errors to HTTP responses.
// Internal details never reach the client; they are logged instead.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	var writeErr error

	switch {
	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, messageOf(err), details)

	case services.IsConfigurationError(err):
		logger.Warn("request rejected by configuration", zap.Error(err))
		writeErr = utils.WriteServiceUnavailable(w, messageOf(err), nil)

	case services.IsUnavailableError(err):
		logger.Info("request arrived before the index was ready", zap.Error(err))
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeErr = utils.WriteServiceUnavailable(w, messageOf(err), nil)

	case services.IsNotFoundError(err):
		// The only missing resource a question can hit is the corpus itself.
		logger.Error("newsletter corpus unavailable", zap.Error(err))
		writeErr = utils.WriteServiceUnavailable(w, "The newsletter archive is unavailable", nil)

	case services.IsExternalError(err):
		logger.Warn("backend call failed", zap.Error(err))
		writeErr = utils.WriteJSON(w, http.StatusBadGateway, utils.ErrorResponse{
			Error:   "bad_gateway",
			Message: messageOf(err),
			Details: details,
		})

	case services.IsInternalError(err), services.IsCacheError(err):
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

// messageOf returns the client-facing message of a domain error without
// the wrapped cause.
func messageOf(err error) string {
	var de *services.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
