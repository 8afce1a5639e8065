package models

import (
	"time"

	"github.com/google/uuid"
)

// QueryLog records one answered question
type QueryLog struct {
	ID               uuid.UUID `json:"id" db:"id"`
	RequestID        string    `json:"request_id" db:"request_id"`
	Query            string    `json:"query" db:"query"`
	Sources          []string  `json:"sources" db:"sources"`
	Backend          string    `json:"backend" db:"backend"`
	Degraded         bool      `json:"degraded" db:"degraded"`
	ChunksConsidered int       `json:"chunks_considered" db:"chunks_considered"`
	LatencyMs        int       `json:"latency_ms" db:"latency_ms"`
	ErrorMessage     *string   `json:"error_message,omitempty" db:"error_message"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the QueryLog model
func (QueryLog) TableName() string {
	return "query_logs"
}

// NewQueryLog creates a new QueryLog instance
func NewQueryLog(requestID, query string) *QueryLog {
	return &QueryLog{
		ID:        uuid.New(),
		RequestID: requestID,
		Query:     query,
		Sources:   []string{},
		CreatedAt: time.Now(),
	}
}

// WithAnswer sets the outcome of the generation step
func (q *QueryLog) WithAnswer(backend string, degraded bool, sources []string) *QueryLog {
	q.Backend = backend
	q.Degraded = degraded
	if sources != nil {
		q.Sources = sources
	}
	return q
}

// WithRetrieval sets retrieval metrics
func (q *QueryLog) WithRetrieval(chunksConsidered int, latency time.Duration) *QueryLog {
	q.ChunksConsidered = chunksConsidered
	q.LatencyMs = int(latency.Milliseconds())
	return q
}

// WithError sets error information
func (q *QueryLog) WithError(errorMessage string) *QueryLog {
	q.ErrorMessage = &errorMessage
	return q
}
