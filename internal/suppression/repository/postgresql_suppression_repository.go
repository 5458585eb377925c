package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/allisson/courier/internal/database"
	messageDomain "github.com/allisson/courier/internal/message/domain"
	suppressionDomain "github.com/allisson/courier/internal/suppression/domain"
)

// PostgreSQLSuppressionRepository stores the suppression list and soft-bounce counters
// in PostgreSQL.
type PostgreSQLSuppressionRepository struct {
	db *sql.DB
}

// NewPostgreSQLSuppressionRepository creates a new PostgreSQLSuppressionRepository.
func NewPostgreSQLSuppressionRepository(db *sql.DB) *PostgreSQLSuppressionRepository {
	return &PostgreSQLSuppressionRepository{db: db}
}

const postgresEntryColumns = `id, channel, address, reason, source, community_id, expires_at, created_at, updated_at`

func scanPostgresEntry(scanner interface{ Scan(dest ...any) error }) (*suppressionDomain.Entry, error) {
	var (
		entry suppressionDomain.Entry
		scope int64
	)
	err := scanner.Scan(&entry.ID, &entry.Channel, &entry.Address, &entry.Reason, &entry.Source,
		&scope, &entry.ExpiresAt, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, err
	}
	entry.CommunityID = suppressionDomain.CommunityFromScope(scope)
	return &entry, nil
}

// FindActive returns the first active entry matching the lookup. Community-scoped
// entries rank before global ones.
func (r *PostgreSQLSuppressionRepository) FindActive(
	ctx context.Context,
	channel messageDomain.Channel,
	address string,
	communityID *int64,
	now time.Time,
) (*suppressionDomain.Entry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresEntryColumns + `
			  FROM suppression_list
			  WHERE address = $1 AND channel IN ($2, $3) AND community_id IN (0, $4)
			    AND (expires_at IS NULL OR expires_at > $5)
			  ORDER BY community_id DESC
			  LIMIT 1`

	entry, err := scanPostgresEntry(querier.QueryRowContext(ctx, query, address, channel,
		suppressionDomain.ChannelAll, suppressionDomain.ScopeID(communityID), now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, suppressionDomain.ErrSuppressionNotFound
	}
	return entry, err
}

// FindActiveAddresses returns the reasons of the suppressed addresses.
func (r *PostgreSQLSuppressionRepository) FindActiveAddresses(
	ctx context.Context,
	channel messageDomain.Channel,
	addresses []string,
	communityID *int64,
	now time.Time,
) (map[string]suppressionDomain.Reason, error) {
	found := make(map[string]suppressionDomain.Reason)
	if len(addresses) == 0 {
		return found, nil
	}

	querier := database.GetTx(ctx, r.db)

	args := []any{channel, suppressionDomain.ChannelAll, suppressionDomain.ScopeID(communityID), now}
	placeholders := make([]string, len(addresses))
	for i, a := range addresses {
		args = append(args, a)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}

	query := `SELECT address, reason
			  FROM suppression_list
			  WHERE channel IN ($1, $2) AND community_id IN (0, $3)
			    AND (expires_at IS NULL OR expires_at > $4)
			    AND address IN (` + strings.Join(placeholders, ", ") + `)`

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var (
			address string
			reason  suppressionDomain.Reason
		)
		if err := rows.Scan(&address, &reason); err != nil {
			return nil, err
		}
		found[address] = reason
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return found, nil
}

// Upsert inserts the entry or refreshes the existing (channel, address, community) row.
func (r *PostgreSQLSuppressionRepository) Upsert(ctx context.Context, entry *suppressionDomain.Entry) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO suppression_list (` + postgresEntryColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  ON CONFLICT (channel, address, community_id)
			  DO UPDATE SET reason = EXCLUDED.reason, source = EXCLUDED.source,
			      expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`

	_, err := querier.ExecContext(ctx, query, entry.ID, entry.Channel, entry.Address, entry.Reason,
		entry.Source, suppressionDomain.ScopeID(entry.CommunityID), entry.ExpiresAt,
		entry.CreatedAt, entry.UpdatedAt)
	return err
}

// Delete removes an entry.
func (r *PostgreSQLSuppressionRepository) Delete(
	ctx context.Context,
	channel messageDomain.Channel,
	address string,
	communityID *int64,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM suppression_list WHERE channel = $1 AND address = $2 AND community_id = $3`

	result, err := querier.ExecContext(ctx, query, channel, address, suppressionDomain.ScopeID(communityID))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return suppressionDomain.ErrSuppressionNotFound
	}
	return nil
}

// DeleteExpired removes entries whose expiry has passed.
func (r *PostgreSQLSuppressionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	result, err := querier.ExecContext(ctx,
		`DELETE FROM suppression_list WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// List returns entries ordered by creation time.
func (r *PostgreSQLSuppressionRepository) List(
	ctx context.Context,
	offset, limit int,
) ([]*suppressionDomain.Entry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresEntryColumns + `
			  FROM suppression_list
			  ORDER BY created_at ASC, id ASC
			  LIMIT $1 OFFSET $2`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	entries := make([]*suppressionDomain.Entry, 0)
	for rows.Next() {
		entry, err := scanPostgresEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Increment atomically adds one soft bounce and returns the new count.
func (r *PostgreSQLSuppressionRepository) Increment(
	ctx context.Context,
	channel messageDomain.Channel,
	address string,
	at time.Time,
) (int, error) {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO soft_bounce_counters (channel, address, bounce_count, last_bounce_at)
			  VALUES ($1, $2, 1, $3)
			  ON CONFLICT (channel, address)
			  DO UPDATE SET bounce_count = soft_bounce_counters.bounce_count + 1, last_bounce_at = EXCLUDED.last_bounce_at
			  RETURNING bounce_count`

	var count int
	if err := querier.QueryRowContext(ctx, query, channel, address, at).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Reset clears the soft-bounce counter of the address.
func (r *PostgreSQLSuppressionRepository) Reset(
	ctx context.Context,
	channel messageDomain.Channel,
	address string,
) error {
	querier := database.GetTx(ctx, r.db)

	_, err := querier.ExecContext(ctx,
		`DELETE FROM soft_bounce_counters WHERE channel = $1 AND address = $2`, channel, address)
	return err
}
