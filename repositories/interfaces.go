package repositories

import (
	"context"
	"errors"

	"github.com/huzzy12/Andrew-Wilkinson-AI/models"
)

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("record not found")

// QueryLogRepository persists answered-question records
type QueryLogRepository interface {
	// Insert stores a new query log entry
	Insert(ctx context.Context, log *models.QueryLog) error

	// GetByRequestID retrieves the entry written for an HTTP request id
	GetByRequestID(ctx context.Context, requestID string) (*models.QueryLog, error)

	// ListRecent returns the newest entries first
	ListRecent(ctx context.Context, limit, offset int) ([]*models.QueryLog, error)
}
