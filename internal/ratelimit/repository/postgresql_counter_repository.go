package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/allisson/courier/internal/database"
	"github.com/allisson/courier/internal/ratelimit/domain"
)

// PostgreSQLCounterRepository stores counters in the rate_limit_counters table.
type PostgreSQLCounterRepository struct {
	db *sql.DB
}

// NewPostgreSQLCounterRepository creates a new PostgreSQLCounterRepository.
func NewPostgreSQLCounterRepository(db *sql.DB) *PostgreSQLCounterRepository {
	return &PostgreSQLCounterRepository{db: db}
}

// Get returns the stored counter or a zero counter.
func (r *PostgreSQLCounterRepository) Get(ctx context.Context, key domain.Key) (domain.Counter, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT second_start, second_count, hour_count, hour_reset_at, day_count, day_reset_at, version
			  FROM rate_limit_counters
			  WHERE limit_type = $1 AND limit_key = $2`

	c := domain.Counter{Key: key}
	err := querier.QueryRowContext(ctx, query, key.Type, key.Value).Scan(
		&c.SecondStart, &c.SecondCount, &c.HourCount, &c.HourResetAt,
		&c.DayCount, &c.DayResetAt, &c.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Counter{Key: key}, nil
	}
	if err != nil {
		return domain.Counter{}, err
	}
	return c, nil
}

// CompareAndSwap inserts the first row of a key or updates it guarded by version.
func (r *PostgreSQLCounterRepository) CompareAndSwap(
	ctx context.Context,
	next domain.Counter,
	expected int64,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	var (
		result sql.Result
		err    error
	)
	if expected == 0 {
		query := `INSERT INTO rate_limit_counters
				  (limit_type, limit_key, second_start, second_count, hour_count, hour_reset_at,
				   day_count, day_reset_at, version, updated_at)
				  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, NOW())
				  ON CONFLICT (limit_type, limit_key) DO NOTHING`
		result, err = querier.ExecContext(ctx, query, next.Key.Type, next.Key.Value,
			next.SecondStart, next.SecondCount, next.HourCount, next.HourResetAt,
			next.DayCount, next.DayResetAt)
	} else {
		query := `UPDATE rate_limit_counters
				  SET second_start = $1, second_count = $2, hour_count = $3, hour_reset_at = $4,
				      day_count = $5, day_reset_at = $6, version = version + 1, updated_at = NOW()
				  WHERE limit_type = $7 AND limit_key = $8 AND version = $9`
		result, err = querier.ExecContext(ctx, query,
			next.SecondStart, next.SecondCount, next.HourCount, next.HourResetAt,
			next.DayCount, next.DayResetAt, next.Key.Type, next.Key.Value, expected)
	}
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
