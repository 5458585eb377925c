package repository

import (
	"encoding/json"
	"strings"

	messageDomain "github.com/allisson/courier/internal/message/domain"
)

// messageColumns is the column order shared by inserts, selects and scans.
var messageColumns = []string{
	"id", "priority", "message_type", "channel", "community_id",
	"recipient_type", "recipient_id", "recipient_address",
	"subject", "body", "template", "variables",
	"source_type", "source_id", "ip_pool", "gateway",
	"status", "scheduled_for", "locked_by", "lock_token", "locked_at",
	"sent_at", "delivered_at", "opened_at", "clicked_at", "bounced_at", "bounce_reason",
	"external_id", "attempts", "max_attempts", "last_error", "next_retry_at",
	"created_at", "updated_at",
}

var messageColumnList = strings.Join(messageColumns, ", ")

func encodeVariables(vars map[string]any) ([]byte, error) {
	if vars == nil {
		return nil, nil
	}
	return json.Marshal(vars)
}

func decodeVariables(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var vars map[string]any
	if err := json.Unmarshal(data, &vars); err != nil {
		return nil, err
	}
	return vars, nil
}

// insertArgs returns the values of msg in messageColumns order. id and lockToken
// are passed in so each dialect can encode UUIDs its own way.
func insertArgs(msg *messageDomain.Message, id, lockToken any) ([]any, error) {
	vars, err := encodeVariables(msg.Variables)
	if err != nil {
		return nil, err
	}
	return []any{
		id, msg.Priority, msg.MessageType, msg.Channel, msg.CommunityID,
		msg.RecipientType, msg.RecipientID, msg.RecipientAddress,
		msg.Subject, msg.Body, msg.Template, vars,
		msg.SourceType, msg.SourceID, msg.IPPool, msg.Gateway,
		msg.Status, msg.ScheduledFor, msg.LockedBy, lockToken, msg.LockedAt,
		msg.SentAt, msg.DeliveredAt, msg.OpenedAt, msg.ClickedAt, msg.BouncedAt, msg.BounceReason,
		msg.ExternalID, msg.Attempts, msg.MaxAttempts, msg.LastError, msg.NextRetryAt,
		msg.CreatedAt, msg.UpdatedAt,
	}, nil
}

// scanDest returns scan targets in messageColumns order. id and lockToken receive
// the dialect-specific UUID encodings; vars receives the raw JSON document.
func scanDest(msg *messageDomain.Message, id, lockToken any, vars *[]byte) []any {
	return []any{
		id, &msg.Priority, &msg.MessageType, &msg.Channel, &msg.CommunityID,
		&msg.RecipientType, &msg.RecipientID, &msg.RecipientAddress,
		&msg.Subject, &msg.Body, &msg.Template, vars,
		&msg.SourceType, &msg.SourceID, &msg.IPPool, &msg.Gateway,
		&msg.Status, &msg.ScheduledFor, &msg.LockedBy, lockToken, &msg.LockedAt,
		&msg.SentAt, &msg.DeliveredAt, &msg.OpenedAt, &msg.ClickedAt, &msg.BouncedAt, &msg.BounceReason,
		&msg.ExternalID, &msg.Attempts, &msg.MaxAttempts, &msg.LastError, &msg.NextRetryAt,
		&msg.CreatedAt, &msg.UpdatedAt,
	}
}
