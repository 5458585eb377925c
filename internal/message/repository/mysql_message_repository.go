package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	messageDomain "github.com/allisson/courier/internal/message/domain"
)

// MySQLMessageRepository stores the queue in the message_queue table. Ids and lock
// tokens are stored as BINARY(16).
type MySQLMessageRepository struct {
	db *sql.DB
}

// NewMySQLMessageRepository creates a new MySQLMessageRepository.
func NewMySQLMessageRepository(db *sql.DB) *MySQLMessageRepository {
	return &MySQLMessageRepository{db: db}
}

func binaryUUID(id *uuid.UUID) ([]byte, error) {
	if id == nil {
		return nil, nil
	}
	return id.MarshalBinary()
}

func scanMySQLMessage(scanner interface{ Scan(dest ...any) error }) (*messageDomain.Message, error) {
	var (
		msg        messageDomain.Message
		idBytes    []byte
		tokenBytes []byte
		vars       []byte
	)
	if err := scanner.Scan(scanDest(&msg, &idBytes, &tokenBytes, &vars)...); err != nil {
		return nil, err
	}
	if err := msg.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, err
	}
	if tokenBytes != nil {
		var token uuid.UUID
		if err := token.UnmarshalBinary(tokenBytes); err != nil {
			return nil, err
		}
		msg.LockToken = &token
	}
	variables, err := decodeVariables(vars)
	if err != nil {
		return nil, err
	}
	msg.Variables = variables
	return &msg, nil
}

func scanMySQLMessages(rows *sql.Rows) ([]*messageDomain.Message, error) {
	msgs := make([]*messageDomain.Message, 0)
	for rows.Next() {
		msg, err := scanMySQLMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Create inserts a message.
func (r *MySQLMessageRepository) Create(ctx context.Context, msg *messageDomain.Message) error {
	return r.CreateBatch(ctx, []*messageDomain.Message{msg})
}

// CreateBatch inserts messages with one multi-row statement.
func (r *MySQLMessageRepository) CreateBatch(ctx context.Context, msgs []*messageDomain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	querier := database.GetTx(ctx, r.db)

	group := "(?" + strings.Repeat(", ?", len(messageColumns)-1) + ")"
	args := make([]any, 0, len(msgs)*len(messageColumns))
	groups := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		id := msg.ID
		idBytes, err := binaryUUID(&id)
		if err != nil {
			return err
		}
		tokenBytes, err := binaryUUID(msg.LockToken)
		if err != nil {
			return err
		}
		values, err := insertArgs(msg, idBytes, tokenBytes)
		if err != nil {
			return err
		}
		args = append(args, values...)
		groups = append(groups, group)
	}

	query := `INSERT INTO message_queue (` + messageColumnList + `) VALUES ` + strings.Join(groups, ", ")

	_, err := querier.ExecContext(ctx, query, args...)
	return err
}

// Get returns a message by id.
func (r *MySQLMessageRepository) Get(ctx context.Context, id uuid.UUID) (*messageDomain.Message, error) {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + messageColumnList + ` FROM message_queue WHERE id = ?`

	msg, err := scanMySQLMessage(querier.QueryRowContext(ctx, query, idBytes))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, messageDomain.ErrMessageNotFound
	}
	return msg, err
}

// GetByExternalID returns the message a provider knows under externalID.
func (r *MySQLMessageRepository) GetByExternalID(
	ctx context.Context,
	externalID string,
) (*messageDomain.Message, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + messageColumnList + ` FROM message_queue WHERE external_id = ? LIMIT 1`

	msg, err := scanMySQLMessage(querier.QueryRowContext(ctx, query, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, messageDomain.ErrMessageNotFound
	}
	return msg, err
}

const mysqlClaimablePredicate = `priority = ?
	AND (
	    (status IN (?, ?) AND scheduled_for <= ? AND (next_retry_at IS NULL OR next_retry_at <= ?))
	    OR (status IN (?, ?) AND locked_at < ?)
	)`

func mysqlClaimableArgs(req messageDomain.ClaimRequest) []any {
	return []any{
		req.Priority,
		messageDomain.StatusPending, messageDomain.StatusRetryScheduled, req.Now, req.Now,
		messageDomain.StatusLocked, messageDomain.StatusSending, req.StaleBefore,
	}
}

// ClaimDue locks up to req.Limit due rows of req.Priority. Candidates are selected
// with SKIP LOCKED and the update repeats the claimable predicate, so a row is only
// taken if it is still claimable at write time; the caller's lock token identifies
// the rows that were won.
func (r *MySQLMessageRepository) ClaimDue(
	ctx context.Context,
	req messageDomain.ClaimRequest,
) ([]*messageDomain.Message, error) {
	querier := database.GetTx(ctx, r.db)

	selectQuery := `SELECT id FROM message_queue
			  WHERE ` + mysqlClaimablePredicate + `
			  ORDER BY scheduled_for ASC, created_at ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, selectQuery, append(mysqlClaimableArgs(req), req.Limit)...)
	if err != nil {
		return nil, err
	}
	ids := make([]any, 0)
	for rows.Next() {
		var idBytes []byte
		if err := rows.Scan(&idBytes); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, idBytes)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return []*messageDomain.Message{}, nil
	}

	tokenBytes, err := req.Lock.Token.MarshalBinary()
	if err != nil {
		return nil, err
	}

	updateQuery := `UPDATE message_queue
			  SET status = ?, locked_by = ?, lock_token = ?, locked_at = ?, updated_at = ?
			  WHERE id IN (?` + strings.Repeat(", ?", len(ids)-1) + `) AND ` + mysqlClaimablePredicate

	args := []any{messageDomain.StatusLocked, req.Lock.WorkerID, tokenBytes, req.Lock.At, req.Lock.At}
	args = append(args, ids...)
	args = append(args, mysqlClaimableArgs(req)...)

	if _, err := querier.ExecContext(ctx, updateQuery, args...); err != nil {
		return nil, err
	}

	claimedQuery := `SELECT ` + messageColumnList + ` FROM message_queue
			  WHERE lock_token = ?
			  ORDER BY scheduled_for ASC, created_at ASC`

	claimedRows, err := querier.QueryContext(ctx, claimedQuery, tokenBytes)
	if err != nil {
		return nil, err
	}
	defer claimedRows.Close() //nolint:errcheck

	return scanMySQLMessages(claimedRows)
}

// MarkSending moves a locked row to sending if token still holds the lock.
func (r *MySQLMessageRepository) MarkSending(ctx context.Context, id, token uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, r.db)

	idBytes, tokenBytes, err := marshalPair(id, token)
	if err != nil {
		return err
	}

	query := `UPDATE message_queue SET status = ?, locked_at = ?, updated_at = ?
			  WHERE id = ? AND lock_token = ? AND status = ?`

	result, err := querier.ExecContext(ctx, query, messageDomain.StatusSending, at, at, idBytes, tokenBytes,
		messageDomain.StatusLocked)
	if err != nil {
		return err
	}
	return requireOne(result, messageDomain.ErrLockLost)
}

func marshalPair(id, token uuid.UUID) ([]byte, []byte, error) {
	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	tokenBytes, err := token.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return idBytes, tokenBytes, nil
}

// Complete writes the attempt outcome and releases the lock if token still holds it.
func (r *MySQLMessageRepository) Complete(
	ctx context.Context,
	id, token uuid.UUID,
	c messageDomain.Completion,
) error {
	querier := database.GetTx(ctx, r.db)

	idBytes, tokenBytes, err := marshalPair(id, token)
	if err != nil {
		return err
	}

	query := `UPDATE message_queue
			  SET status = ?, gateway = COALESCE(?, gateway), ip_pool = COALESCE(?, ip_pool),
			      external_id = COALESCE(?, external_id), attempts = ?, last_error = ?,
			      next_retry_at = ?, sent_at = COALESCE(?, sent_at),
			      locked_by = NULL, lock_token = NULL, locked_at = NULL, updated_at = ?
			  WHERE id = ? AND lock_token = ? AND status IN (?, ?)`

	result, err := querier.ExecContext(ctx, query, c.Status, c.Gateway, c.IPPool, c.ExternalID,
		c.Attempts, c.LastError, c.NextRetryAt, c.SentAt, c.At, idBytes, tokenBytes,
		messageDomain.StatusLocked, messageDomain.StatusSending)
	if err != nil {
		return err
	}
	return requireOne(result, messageDomain.ErrLockLost)
}

// Cancel moves a pending or retry-scheduled row to cancelled.
func (r *MySQLMessageRepository) Cancel(ctx context.Context, id uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return err
	}

	query := `UPDATE message_queue
			  SET status = ?, last_error = ?, next_retry_at = NULL, updated_at = ?
			  WHERE id = ? AND status IN (?, ?)`

	result, err := querier.ExecContext(ctx, query, messageDomain.StatusCancelled,
		messageDomain.ReasonCancelled, at, idBytes, messageDomain.StatusPending,
		messageDomain.StatusRetryScheduled)
	if err != nil {
		return err
	}
	if err := requireOne(result, messageDomain.ErrNotCancellable); err != nil {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return getErr
		}
		return err
	}
	return nil
}

func (r *MySQLMessageRepository) markOnce(ctx context.Context, column string, id uuid.UUID, at time.Time) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`UPDATE message_queue SET %[1]s = ?, updated_at = ?
			  WHERE id = ? AND %[1]s IS NULL`, column)

	result, err := querier.ExecContext(ctx, query, at, at, idBytes)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return false, err
		}
	}
	return affected == 1, nil
}

// MarkDelivered sets delivered_at once. It reports whether this call set it.
func (r *MySQLMessageRepository) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.markOnce(ctx, "delivered_at", id, at)
}

// MarkOpened sets opened_at to the first open.
func (r *MySQLMessageRepository) MarkOpened(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.markOnce(ctx, "opened_at", id, at)
}

// MarkClicked sets clicked_at to the first click.
func (r *MySQLMessageRepository) MarkClicked(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.markOnce(ctx, "clicked_at", id, at)
}

// MarkBounced records the bounce reason. bounced_at keeps the first bounce.
func (r *MySQLMessageRepository) MarkBounced(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return err
	}

	query := `UPDATE message_queue
			  SET bounced_at = COALESCE(bounced_at, ?), bounce_reason = ?, updated_at = ?
			  WHERE id = ?`

	result, err := querier.ExecContext(ctx, query, at, reason, at, idBytes)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// MySQL reports zero affected rows when the values did not change.
		_, err := r.Get(ctx, id)
		return err
	}
	return nil
}

// CountByPriorityStatus returns the row count of every (priority, status) pair,
// ordered by priority then status.
func (r *MySQLMessageRepository) CountByPriorityStatus(ctx context.Context) ([]messageDomain.QueueCount, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT priority, status, COUNT(*) FROM message_queue
			  GROUP BY priority, status
			  ORDER BY priority, status`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	counts := make([]messageDomain.QueueCount, 0)
	for rows.Next() {
		var c messageDomain.QueueCount
		if err := rows.Scan(&c.Priority, &c.Status, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

// CountStaleLocks counts locked or sending rows whose lock predates staleBefore.
func (r *MySQLMessageRepository) CountStaleLocks(ctx context.Context, staleBefore time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT COUNT(*) FROM message_queue WHERE status IN (?, ?) AND locked_at < ?`

	var n int64
	err := querier.QueryRowContext(ctx, query, messageDomain.StatusLocked, messageDomain.StatusSending,
		staleBefore).Scan(&n)
	return n, err
}
