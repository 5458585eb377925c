package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/courier/internal/database"
	healthDomain "github.com/allisson/courier/internal/health/domain"
)

// MySQLHealthRepository stores health snapshots in the channel_health table.
type MySQLHealthRepository struct {
	db *sql.DB
}

// NewMySQLHealthRepository creates a new MySQLHealthRepository.
func NewMySQLHealthRepository(db *sql.DB) *MySQLHealthRepository {
	return &MySQLHealthRepository{db: db}
}

// Upsert stores the record of its (channel, gateway).
func (r *MySQLHealthRepository) Upsert(ctx context.Context, record healthDomain.Record) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO channel_health
			  (channel, gateway, is_healthy, circuit_open, success_rate_1h, success_rate_24h, samples_1h,
			   avg_latency_ms, current_rate_per_sec, max_rate_per_sec, consecutive_failures,
			   last_check_at, last_failure_at, failure_reason, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW())
			  ON DUPLICATE KEY UPDATE
			      is_healthy = VALUES(is_healthy), circuit_open = VALUES(circuit_open),
			      success_rate_1h = VALUES(success_rate_1h), success_rate_24h = VALUES(success_rate_24h),
			      samples_1h = VALUES(samples_1h), avg_latency_ms = VALUES(avg_latency_ms),
			      current_rate_per_sec = VALUES(current_rate_per_sec),
			      max_rate_per_sec = VALUES(max_rate_per_sec),
			      consecutive_failures = VALUES(consecutive_failures),
			      last_check_at = VALUES(last_check_at), last_failure_at = VALUES(last_failure_at),
			      failure_reason = VALUES(failure_reason), updated_at = NOW()`

	_, err := querier.ExecContext(ctx, query, record.Channel, record.Gateway, record.Healthy,
		record.CircuitOpen, record.SuccessRate1h, record.SuccessRate24h, record.Samples1h,
		record.AvgLatencyMs, record.CurrentRatePerSec, record.MaxRatePerSec, record.ConsecutiveFailures,
		record.LastCheckAt, record.LastFailureAt, record.FailureReason)
	return err
}

// List returns every stored record ordered by channel and gateway.
func (r *MySQLHealthRepository) List(ctx context.Context) ([]healthDomain.Record, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT channel, gateway, is_healthy, circuit_open, success_rate_1h, success_rate_24h, samples_1h,
			         avg_latency_ms, current_rate_per_sec, max_rate_per_sec, consecutive_failures,
			         last_check_at, last_failure_at, failure_reason
			  FROM channel_health
			  ORDER BY channel, gateway`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	return scanRecords(rows)
}
