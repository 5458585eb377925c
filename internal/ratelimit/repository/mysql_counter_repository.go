package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/allisson/courier/internal/database"
	"github.com/allisson/courier/internal/ratelimit/domain"
)

// MySQLCounterRepository stores counters in the rate_limit_counters table.
type MySQLCounterRepository struct {
	db *sql.DB
}

// NewMySQLCounterRepository creates a new MySQLCounterRepository.
func NewMySQLCounterRepository(db *sql.DB) *MySQLCounterRepository {
	return &MySQLCounterRepository{db: db}
}

// Get returns the stored counter or a zero counter.
func (r *MySQLCounterRepository) Get(ctx context.Context, key domain.Key) (domain.Counter, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT second_start, second_count, hour_count, hour_reset_at, day_count, day_reset_at, version
			  FROM rate_limit_counters
			  WHERE limit_type = ? AND limit_key = ?`

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
func (r *MySQLCounterRepository) CompareAndSwap(
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
		// INSERT IGNORE reports 0 affected rows when the key already exists
		query := `INSERT IGNORE INTO rate_limit_counters
				  (limit_type, limit_key, second_start, second_count, hour_count, hour_reset_at,
				   day_count, day_reset_at, version, updated_at)
				  VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, NOW())`
		result, err = querier.ExecContext(ctx, query, next.Key.Type, next.Key.Value,
			next.SecondStart, next.SecondCount, next.HourCount, next.HourResetAt,
			next.DayCount, next.DayResetAt)
	} else {
		query := `UPDATE rate_limit_counters
				  SET second_start = ?, second_count = ?, hour_count = ?, hour_reset_at = ?,
				      day_count = ?, day_reset_at = ?, version = version + 1, updated_at = NOW()
				  WHERE limit_type = ? AND limit_key = ? AND version = ?`
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
