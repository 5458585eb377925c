package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	messageDomain "github.com/allisson/courier/internal/message/domain"
)

// PostgreSQLMessageRepository stores the queue in the message_queue table.
type PostgreSQLMessageRepository struct {
	db *sql.DB
}

// NewPostgreSQLMessageRepository creates a new PostgreSQLMessageRepository.
func NewPostgreSQLMessageRepository(db *sql.DB) *PostgreSQLMessageRepository {
	return &PostgreSQLMessageRepository{db: db}
}

func scanPostgresMessage(scanner interface{ Scan(dest ...any) error }) (*messageDomain.Message, error) {
	var (
		msg  messageDomain.Message
		vars []byte
	)
	if err := scanner.Scan(scanDest(&msg, &msg.ID, &msg.LockToken, &vars)...); err != nil {
		return nil, err
	}
	variables, err := decodeVariables(vars)
	if err != nil {
		return nil, err
	}
	msg.Variables = variables
	return &msg, nil
}

func scanPostgresMessages(rows *sql.Rows) ([]*messageDomain.Message, error) {
	msgs := make([]*messageDomain.Message, 0)
	for rows.Next() {
		msg, err := scanPostgresMessage(rows)
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
func (r *PostgreSQLMessageRepository) Create(ctx context.Context, msg *messageDomain.Message) error {
	return r.CreateBatch(ctx, []*messageDomain.Message{msg})
}

// CreateBatch inserts messages with one multi-row statement.
func (r *PostgreSQLMessageRepository) CreateBatch(ctx context.Context, msgs []*messageDomain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	querier := database.GetTx(ctx, r.db)

	args := make([]any, 0, len(msgs)*len(messageColumns))
	groups := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		values, err := insertArgs(msg, msg.ID, msg.LockToken)
		if err != nil {
			return err
		}
		placeholders := make([]string, len(values))
		for i := range values {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+i+1)
		}
		args = append(args, values...)
		groups = append(groups, "("+strings.Join(placeholders, ", ")+")")
	}

	query := `INSERT INTO message_queue (` + messageColumnList + `) VALUES ` + strings.Join(groups, ", ")

	_, err := querier.ExecContext(ctx, query, args...)
	return err
}

// Get returns a message by id.
func (r *PostgreSQLMessageRepository) Get(ctx context.Context, id uuid.UUID) (*messageDomain.Message, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + messageColumnList + ` FROM message_queue WHERE id = $1`

	msg, err := scanPostgresMessage(querier.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, messageDomain.ErrMessageNotFound
	}
	return msg, err
}

// GetByExternalID returns the message a provider knows under externalID.
func (r *PostgreSQLMessageRepository) GetByExternalID(
	ctx context.Context,
	externalID string,
) (*messageDomain.Message, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + messageColumnList + ` FROM message_queue WHERE external_id = $1 LIMIT 1`

	msg, err := scanPostgresMessage(querier.QueryRowContext(ctx, query, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, messageDomain.ErrMessageNotFound
	}
	return msg, err
}

// ClaimDue locks up to req.Limit due rows of req.Priority in one conditional update.
// SKIP LOCKED keeps concurrent claimers from waiting on or double-claiming rows.
func (r *PostgreSQLMessageRepository) ClaimDue(
	ctx context.Context,
	req messageDomain.ClaimRequest,
) ([]*messageDomain.Message, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE message_queue
			  SET status = $1, locked_by = $2, lock_token = $3, locked_at = $4, updated_at = $4
			  WHERE id IN (
			      SELECT id FROM message_queue
			      WHERE priority = $5
			        AND (
			            (status IN ($6, $7) AND scheduled_for <= $8 AND (next_retry_at IS NULL OR next_retry_at <= $8))
			            OR (status IN ($1, $9) AND locked_at < $10)
			        )
			      ORDER BY scheduled_for ASC, created_at ASC
			      LIMIT $11
			      FOR UPDATE SKIP LOCKED
			  )
			  RETURNING ` + messageColumnList

	rows, err := querier.QueryContext(ctx, query,
		messageDomain.StatusLocked, req.Lock.WorkerID, req.Lock.Token, req.Lock.At,
		req.Priority, messageDomain.StatusPending, messageDomain.StatusRetryScheduled, req.Now,
		messageDomain.StatusSending, req.StaleBefore, req.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	msgs, err := scanPostgresMessages(rows)
	if err != nil {
		return nil, err
	}
	sortBySchedule(msgs)
	return msgs, nil
}

func sortBySchedule(msgs []*messageDomain.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].ScheduledFor.Equal(msgs[j].ScheduledFor) {
			return msgs[i].ScheduledFor.Before(msgs[j].ScheduledFor)
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

// MarkSending moves a locked row to sending if token still holds the lock.
func (r *PostgreSQLMessageRepository) MarkSending(ctx context.Context, id, token uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE message_queue SET status = $1, locked_at = $2, updated_at = $2
			  WHERE id = $3 AND lock_token = $4 AND status = $5`

	result, err := querier.ExecContext(ctx, query, messageDomain.StatusSending, at, id, token,
		messageDomain.StatusLocked)
	if err != nil {
		return err
	}
	return requireOne(result, messageDomain.ErrLockLost)
}

// Complete writes the attempt outcome and releases the lock if token still holds it.
func (r *PostgreSQLMessageRepository) Complete(
	ctx context.Context,
	id, token uuid.UUID,
	c messageDomain.Completion,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE message_queue
			  SET status = $1, gateway = COALESCE($2, gateway), ip_pool = COALESCE($3, ip_pool),
			      external_id = COALESCE($4, external_id), attempts = $5, last_error = $6,
			      next_retry_at = $7, sent_at = COALESCE($8, sent_at),
			      locked_by = NULL, lock_token = NULL, locked_at = NULL, updated_at = $9
			  WHERE id = $10 AND lock_token = $11 AND status IN ($12, $13)`

	result, err := querier.ExecContext(ctx, query, c.Status, c.Gateway, c.IPPool, c.ExternalID,
		c.Attempts, c.LastError, c.NextRetryAt, c.SentAt, c.At, id, token,
		messageDomain.StatusLocked, messageDomain.StatusSending)
	if err != nil {
		return err
	}
	return requireOne(result, messageDomain.ErrLockLost)
}

// Cancel moves a pending or retry-scheduled row to cancelled.
func (r *PostgreSQLMessageRepository) Cancel(ctx context.Context, id uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE message_queue
			  SET status = $1, last_error = $2, next_retry_at = NULL, updated_at = $3
			  WHERE id = $4 AND status IN ($5, $6)`

	result, err := querier.ExecContext(ctx, query, messageDomain.StatusCancelled,
		messageDomain.ReasonCancelled, at, id, messageDomain.StatusPending, messageDomain.StatusRetryScheduled)
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

func (r *PostgreSQLMessageRepository) markOnce(ctx context.Context, column string, id uuid.UUID, at time.Time) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := fmt.Sprintf(`UPDATE message_queue SET %[1]s = $1, updated_at = $1
			  WHERE id = $2 AND %[1]s IS NULL`, column)

	result, err := querier.ExecContext(ctx, query, at, id)
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
func (r *PostgreSQLMessageRepository) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.markOnce(ctx, "delivered_at", id, at)
}

// MarkOpened sets opened_at to the first open.
func (r *PostgreSQLMessageRepository) MarkOpened(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.markOnce(ctx, "opened_at", id, at)
}

// MarkClicked sets clicked_at to the first click.
func (r *PostgreSQLMessageRepository) MarkClicked(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.markOnce(ctx, "clicked_at", id, at)
}

// MarkBounced records the bounce reason. bounced_at keeps the first bounce.
func (r *PostgreSQLMessageRepository) MarkBounced(
	ctx context.Context,
	id uuid.UUID,
	reason string,
	at time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE message_queue
			  SET bounced_at = COALESCE(bounced_at, $1), bounce_reason = $2, updated_at = $1
			  WHERE id = $3`

	result, err := querier.ExecContext(ctx, query, at, reason, id)
	if err != nil {
		return err
	}
	return requireOne(result, messageDomain.ErrMessageNotFound)
}

// CountByPriorityStatus returns the row count of every (priority, status) pair,
// ordered by priority then status.
func (r *PostgreSQLMessageRepository) CountByPriorityStatus(ctx context.Context) ([]messageDomain.QueueCount, error) {
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
func (r *PostgreSQLMessageRepository) CountStaleLocks(ctx context.Context, staleBefore time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT COUNT(*) FROM message_queue WHERE status IN ($1, $2) AND locked_at < $3`

	var n int64
	err := querier.QueryRowContext(ctx, query, messageDomain.StatusLocked, messageDomain.StatusSending,
		staleBefore).Scan(&n)
	return n, err
}

func requireOne(result sql.Result, otherwise error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return otherwise
	}
	return nil
}
