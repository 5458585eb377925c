package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
)

// PostgreSQLEventRepository stores events in the delivery_events table.
type PostgreSQLEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLEventRepository creates a new PostgreSQLEventRepository.
func NewPostgreSQLEventRepository(db *sql.DB) *PostgreSQLEventRepository {
	return &PostgreSQLEventRepository{db: db}
}

// Append stores the event. The unique (source, external_event_id) index turns a
// replay into a no-op, reported as ErrDuplicateEvent.
func (r *PostgreSQLEventRepository) Append(ctx context.Context, event *deliveryDomain.Event) error {
	querier := database.GetTx(ctx, r.db)

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	query := `INSERT INTO delivery_events
			  (id, message_id, event_type, payload, source, external_event_id, occurred_at, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  ON CONFLICT (source, external_event_id) DO NOTHING`

	result, err := querier.ExecContext(ctx, query, event.ID, event.MessageID, event.Type, payload,
		event.Source, event.ExternalEventID, event.OccurredAt, event.CreatedAt)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return deliveryDomain.ErrDuplicateEvent
	}
	return nil
}

// ListByMessage returns the events of a message in occurrence order.
func (r *PostgreSQLEventRepository) ListByMessage(
	ctx context.Context,
	messageID uuid.UUID,
) ([]*deliveryDomain.Event, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, message_id, event_type, payload, source, external_event_id, occurred_at, created_at
			  FROM delivery_events
			  WHERE message_id = $1
			  ORDER BY occurred_at ASC, created_at ASC`

	rows, err := querier.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	events := make([]*deliveryDomain.Event, 0)
	for rows.Next() {
		var (
			event   deliveryDomain.Event
			payload []byte
		)
		err := rows.Scan(&event.ID, &event.MessageID, &event.Type, &payload, &event.Source,
			&event.ExternalEventID, &event.OccurredAt, &event.CreatedAt)
		if err != nil {
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

func decodePayload(data []byte, event *deliveryDomain.Event) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, &event.Payload)
}
