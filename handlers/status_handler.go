package handlers

import (
	"net/http"

	"github.com/huzzy12/Andrew-Wilkinson-AI/services/audit"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/generation"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/retrieval"
	"github.com/huzzy12/Andrew-Wilkinson-AI/utils"
	"go.uber.org/zap"
)

// Version is reported by the status endpoint; overridden at link time.
var Version = "0.1.0"

// BackendReporter exposes the generation chain.
type BackendReporter interface {
	Backends() []string
	GetStats() map[string]generation.BackendStats
}

// AuditReporter exposes the audit queue.
type AuditReporter interface {
	GetStats() audit.Stats
}

// StatusResponse is the body of GET /api/v1/status
type StatusResponse struct {
	Version      string                             `json:"version"`
	Environment  string                             `json:"environment"`
	Index        retrieval.Stats                    `json:"index"`
	Backends     []string                           `json:"backends"`
	BackendStats map[string]generation.BackendStats `json:"backend_stats"`
	Audit        *audit.Stats                       `json:"audit,omitempty"`
}

// StatusHandler reports index and backend state
type StatusHandler struct {
	environment string
	index       IndexReporter
	backends    BackendReporter
	audit       AuditReporter
	logger      *zap.Logger
}

// NewStatusHandler creates a new StatusHandler. auditor may be nil.
func NewStatusHandler(environment string, index IndexReporter, backends BackendReporter, auditor AuditReporter, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		environment: environment,
		index:       index,
		backends:    backends,
		audit:       auditor,
		logger:      logger,
	}
}

// HandleStatus handles GET /api/v1/status
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Version:      Version,
		Environment:  h.environment,
		Index:        h.index.Stats(),
		Backends:     h.backends.Backends(),
		BackendStats: h.backends.GetStats(),
	}
	if h.audit != nil {
		stats := h.audit.GetStats()
		response.Audit = &stats
	}

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write status response", zap.Error(err))
	}
}
