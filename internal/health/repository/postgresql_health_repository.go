package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/courier/internal/database"
	healthDomain "github.com/allisson/courier/internal/health/domain"
)

// PostgreSQLHealthRepository stores health snapshots in the channel_health table.
type PostgreSQLHealthRepository struct {
	db *sql.DB
}

// NewPostgreSQLHealthRepository creates a new PostgreSQLHealthRepository.
func NewPostgreSQLHealthRepository(db *sql.DB) *PostgreSQLHealthRepository {
	return &PostgreSQLHealthRepository{db: db}
}

// Upsert stores the record of its (channel, gateway).
func (r *PostgreSQLHealthRepository) Upsert(ctx context.Context, record healthDomain.Record) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO channel_health
			  (channel, gateway, is_healthy, circuit_open, success_rate_1h, success_rate_24h, samples_1h,
			   avg_latency_ms, current_rate_per_sec, max_rate_per_sec, consecutive_failures,
			   last_check_at, last_failure_at, failure_reason, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
			  ON CONFLICT (channel, gateway) DO UPDATE SET
			      is_healthy = EXCLUDED.is_healthy, circuit_open = EXCLUDED.circuit_open,
			      success_rate_1h = EXCLUDED.success_rate_1h, success_rate_24h = EXCLUDED.success_rate_24h,
			      samples_1h = EXCLUDED.samples_1h, avg_latency_ms = EXCLUDED.avg_latency_ms,
			      current_rate_per_sec = EXCLUDED.current_rate_per_sec,
			      max_rate_per_sec = EXCLUDED.max_rate_per_sec,
			      consecutive_failures = EXCLUDED.consecutive_failures,
			      last_check_at = EXCLUDED.last_check_at, last_failure_at = EXCLUDED.last_failure_at,
			      failure_reason = EXCLUDED.failure_reason, updated_at = NOW()`

	_, err := querier.ExecContext(ctx, query, record.Channel, record.Gateway, record.Healthy,
		record.CircuitOpen, record.SuccessRate1h, record.SuccessRate24h, record.Samples1h,
		record.AvgLatencyMs, record.CurrentRatePerSec, record.MaxRatePerSec, record.ConsecutiveFailures,
		record.LastCheckAt, record.LastFailureAt, record.FailureReason)
	return err
}

// List returns every stored record ordered by channel and gateway.
func (r *PostgreSQLHealthRepository) List(ctx context.Context) ([]healthDomain.Record, error) {
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

func scanRecords(rows *sql.Rows) ([]healthDomain.Record, error) {
	records := make([]healthDomain.Record, 0)
	for rows.Next() {
		var rec healthDomain.Record
		err := rows.Scan(&rec.Channel, &rec.Gateway, &rec.Healthy, &rec.CircuitOpen,
			&rec.SuccessRate1h, &rec.SuccessRate24h, &rec.Samples1h, &rec.AvgLatencyMs,
			&rec.CurrentRatePerSec, &rec.MaxRatePerSec, &rec.ConsecutiveFailures,
			&rec.LastCheckAt, &rec.LastFailureAt, &rec.FailureReason)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
