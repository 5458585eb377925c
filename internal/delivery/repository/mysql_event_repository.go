package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
)

const mysqlDuplicateEntry = 1062

// MySQLEventRepository stores events in the delivery_events table. Ids are stored
// as BINARY(16).
type MySQLEventRepository struct {
	db *sql.DB
}

// NewMySQLEventRepository creates a new MySQLEventRepository.
func NewMySQLEventRepository(db *sql.DB) *MySQLEventRepository {
	return &MySQLEventRepository{db: db}
}

// Append stores the event. A duplicate-key error on the unique (source,
// external_event_id) index is reported as ErrDuplicateEvent.
func (r *MySQLEventRepository) Append(ctx context.Context, event *deliveryDomain.Event) error {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := event.ID.MarshalBinary()
	if err != nil {
		return err
	}
	messageIDBytes, err := event.MessageID.MarshalBinary()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	query := `INSERT INTO delivery_events
			  (id, message_id, event_type, payload, source, external_event_id, occurred_at, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(ctx, query, idBytes, messageIDBytes, event.Type, payload,
		event.Source, event.ExternalEventID, event.OccurredAt, event.CreatedAt)

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return deliveryDomain.ErrDuplicateEvent
	}
	return err
}

// ListByMessage returns the events of a message in occurrence order.
func (r *MySQLEventRepository) ListByMessage(
	ctx context.Context,
	messageID uuid.UUID,
) ([]*deliveryDomain.Event, error) {
	querier := database.GetTx(ctx, r.db)

	messageIDBytes, err := messageID.MarshalBinary()
	if err != nil {
		return nil, err
	}

	query := `SELECT id, message_id, event_type, payload, source, external_event_id, occurred_at, created_at
			  FROM delivery_events
			  WHERE message_id = ?
			  ORDER BY occurred_at ASC, created_at ASC`

	rows, err := querier.QueryContext(ctx, query, messageIDBytes)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	events := make([]*deliveryDomain.Event, 0)
	for rows.Next() {
		var (
			event               deliveryDomain.Event
			idBytes, msgIDBytes []byte
			payload             []byte
		)
		err := rows.Scan(&idBytes, &msgIDBytes, &event.Type, &payload, &event.Source,
			&event.ExternalEventID, &event.OccurredAt, &event.CreatedAt)
		if err != nil {
			return nil, err
		}
		if err := event.ID.UnmarshalBinary(idBytes); err != nil {
			return nil, err
		}
		if err := event.MessageID.UnmarshalBinary(msgIDBytes); err != nil {
			return nil, err
		}
		if err := decodePayload(payload, &event); err != nil {
			return nil, err
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
