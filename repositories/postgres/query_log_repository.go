package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/huzzy12/Andrew-Wilkinson-AI/models"
	"github.com/huzzy12/Andrew-Wilkinson-AI/repositories"
)

const queryLogColumns = `id, request_id, query, sources, backend, degraded,
		       chunks_considered, latency_ms, error_message, created_at`

// QueryLogRepository implements repositories.QueryLogRepository
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

// Insert inserts a new query log entry
func (r *QueryLogRepository) Insert(ctx context.Context, log *models.QueryLog) error {
	query := `
		INSERT INTO query_logs (
			id, request_id, query, sources, backend, degraded,
			chunks_considered, latency_ms, error_message, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.RequestID,
		log.Query,
		pq.Array(log.Sources),
		log.Backend,
		log.Degraded,
		log.ChunksConsidered,
		log.LatencyMs,
		log.ErrorMessage,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert query log: %w", err)
	}

	r.logger.Debug("query log inserted", zap.String("id", log.ID.String()), zap.String("backend", log.Backend))
	return nil
}

// GetByRequestID retrieves a query log by request id
func (r *QueryLogRepository) GetByRequestID(ctx context.Context, requestID string) (*models.QueryLog, error) {
	query := `
		SELECT ` + queryLogColumns + `
		FROM query_logs
		WHERE request_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	log, err := scanQueryLog(r.db.QueryRowContext(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("query log for request %s: %w", requestID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get query log: %w", err)
	}
	return log, nil
}

// ListRecent retrieves query logs newest first
func (r *QueryLogRepository) ListRecent(ctx context.Context, limit, offset int) ([]*models.QueryLog, error) {
	query := `
		SELECT ` + queryLogColumns + `
		FROM query_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query query logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.QueryLog, 0)
	for rows.Next() {
		log, err := scanQueryLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating query logs: %w", err)
	}
	return logs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueryLog(row rowScanner) (*models.QueryLog, error) {
	log := &models.QueryLog{}
	var backend sql.NullString
	var requestID sql.NullString
	err := row.Scan(
		&log.ID,
		&requestID,
		&log.Query,
		pq.Array(&log.Sources),
		&backend,
		&log.Degraded,
		&log.ChunksConsidered,
		&log.LatencyMs,
		&log.ErrorMessage,
		&log.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	log.RequestID = requestID.String
	log.Backend = backend.String
	if log.Sources == nil {
		log.Sources = []string{}
	}
	return log, nil
}
