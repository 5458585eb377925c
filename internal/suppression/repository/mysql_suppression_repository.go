package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/allisson/courier/internal/database"
	messageDomain "github.com/allisson/courier/internal/message/domain"
	suppressionDomain "github.com/allisson/courier/internal/suppression/domain"
)

// MySQLSuppressionRepository stores the suppression list and soft-bounce counters in
// MySQL. Entry ids are stored as BINARY(16).
type MySQLSuppressionRepository struct {
	db *sql.DB
}

// NewMySQLSuppressionRepository creates a new MySQLSuppressionRepository.
func NewMySQLSuppressionRepository(db *sql.DB) *MySQLSuppressionRepository {
	return &MySQLSuppressionRepository{db: db}
}

const mysqlEntryColumns = `id, channel, address, reason, source, community_id, expires_at, created_at, updated_at`

func scanMySQLEntry(scanner interface{ Scan(dest ...any) error }) (*suppressionDomain.Entry, error) {
	var (
		entry   suppressionDomain.Entry
		idBytes []byte
		scope   int64
	)
	err := scanner.Scan(&idBytes, &entry.Channel, &entry.Address, &entry.Reason, &entry.Source,
		&scope, &entry.ExpiresAt, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := entry.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, err
	}
	entry.CommunityID = suppressionDomain.CommunityFromScope(scope)
	return &entry, nil
}

// FindActive returns the first active entry matching the lookup.
func (r *MySQLSuppressionRepository) FindActive(
	ctx context.Context,
	channel messageDomain.Channel,
	address string,
	communityID *int64,
	now time.Time,
) (*suppressionDomain.Entry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + mysqlEntryColumns + `
			  FROM suppression_list
			  WHERE address = ? AND channel IN (?, ?) AND community_id IN (0, ?)
			    AND (expires_at IS NULL OR expires_at > ?)
			  ORDER BY community_id DESC
			  LIMIT 1`

	entry, err := scanMySQLEntry(querier.QueryRowContext(ctx, query, address, channel,
		suppressionDomain.ChannelAll, suppressionDomain.ScopeID(communityID), now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, suppressionDomain.ErrSuppressionNotFound
	}
	return entry, err
}

// FindActiveAddresses returns the reasons of the suppressed addresses.
func (r *MySQLSuppressionRepository) FindActiveAddresses(
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
	for _, a := range addresses {
		args = append(args, a)
	}

	query := `SELECT address, reason
			  FROM suppression_list
			  WHERE channel IN (?, ?) AND community_id IN (0, ?)
			    AND (expires_at IS NULL OR expires_at > ?)
			    AND address IN (?` + strings.Repeat(", ?", len(addresses)-1) + `)`

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
func (r *MySQLSuppressionRepository) Upsert(ctx context.Context, entry *suppressionDomain.Entry) error {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := entry.ID.MarshalBinary()
	if err != nil {
		return err
	}

	query := `INSERT INTO suppression_list (` + mysqlEntryColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE reason = VALUES(reason), source = VALUES(source),
			      expires_at = VALUES(expires_at), updated_at = VALUES(updated_at)`

	_, err = querier.ExecContext(ctx, query, idBytes, entry.Channel, entry.Address, entry.Reason,
		entry.Source, suppressionDomain.ScopeID(entry.CommunityID), entry.ExpiresAt,
		entry.CreatedAt, entry.UpdatedAt)
	return err
}

// Delete removes an entry.
func (r *MySQLSuppressionRepository) Delete(
	ctx context.Context,
	channel messageDomain.Channel,
	address string,
	communityID *int64,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM suppression_list WHERE channel = ? AND address = ? AND community_id = ?`

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
func (r *MySQLSuppressionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	result, err := querier.ExecContext(ctx,
		`DELETE FROM suppression_list WHERE expires_at IS NOT NULL AND expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// List returns entries ordered by creation time.
func (r *MySQLSuppressionRepository) List(
	ctx context.Context,
	offset, limit int,
) ([]*suppressionDomain.Entry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + mysqlEntryColumns + `
			  FROM suppression_list
			  ORDER BY created_at ASC, id ASC
			  LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	entries := make([]*suppressionDomain.Entry, 0)
	for rows.Next() {
		entry, err := scanMySQLEntry(rows)
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

// Increment adds one soft bounce and returns the new count. The upsert is atomic;
// the read-back may observe a concurrent later increment, which only moves the
// threshold check earlier.
func (r *MySQLSuppressionRepository) Increment(
	ctx context.Context,
	channel messageDomain.Channel,
	address string,
	at time.Time,
) (int, error) {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO soft_bounce_counters (channel, address, bounce_count, last_bounce_at)
			  VALUES (?, ?, 1, ?)
			  ON DUPLICATE KEY UPDATE bounce_count = bounce_count + 1, last_bounce_at = VALUES(last_bounce_at)`

	if _, err := querier.ExecContext(ctx, query, channel, address, at); err != nil {
		return 0, err
	}

	var count int
	err := querier.QueryRowContext(ctx,
		`SELECT bounce_count FROM soft_bounce_counters WHERE channel = ? AND address = ?`,
		channel, address,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Reset clears the soft-bounce counter of the address.
func (r *MySQLSuppressionRepository) Reset(
	ctx context.Context,
	channel messageDomain.Channel,
	address string,
) error {
	querier := database.GetTx(ctx, r.db)

	_, err := querier.ExecContext(ctx,
		`DELETE FROM soft_bounce_counters WHERE channel = ? AND address = ?`, channel, address)
	return err
}
