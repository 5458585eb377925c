// Package dto provides data transfer objects for delivery event ingestion: the
// normalized event contract and the provider webhook payloads.
package dto

import (
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
)

var eventTypes = []interface{}{
	string(deliveryDomain.EventSent),
	string(deliveryDomain.EventDelivered),
	string(deliveryDomain.EventOpened),
	string(deliveryDomain.EventClicked),
	string(deliveryDomain.EventBounced),
	string(deliveryDomain.EventComplained),
}

// EventRequest is a provider-neutral delivery event.
type EventRequest struct {
	Source            string         `json:"source"`
	ExternalEventID   *string        `json:"external_event_id,omitempty"`
	MessageID         *string        `json:"message_id,omitempty"`
	ExternalMessageID *string        `json:"external_message_id,omitempty"`
	Type              string         `json:"type"`
	BounceType        string         `json:"bounce_type,omitempty"`
	Reason            string         `json:"reason,omitempty"`
	Payload           map[string]any `json:"payload,omitempty"`
	OccurredAt        *time.Time     `json:"occurred_at,omitempty"`
}

// Validate checks the event fields.
func (r *EventRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Source, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.Type, validation.Required, validation.In(eventTypes...)),
		validation.Field(&r.BounceType,
			validation.In(string(deliveryDomain.BounceHard), string(deliveryDomain.BounceSoft)),
		),
		validation.Field(&r.MessageID,
			validation.When(r.ExternalMessageID == nil, validation.Required),
			validation.By(isUUID),
		),
	)
}

func isUUID(value interface{}) error {
	s, ok := value.(*string)
	if !ok || s == nil {
		return nil
	}
	if _, err := uuid.Parse(*s); err != nil {
		return validation.NewError("validation_uuid", "must be a valid UUID")
	}
	return nil
}

// ToInbound converts the request to the domain event. Validate must pass first.
func (r *EventRequest) ToInbound() deliveryDomain.Inbound {
	in := deliveryDomain.Inbound{
		Source:            r.Source,
		ExternalEventID:   r.ExternalEventID,
		ExternalMessageID: r.ExternalMessageID,
		Type:              deliveryDomain.EventType(r.Type),
		BounceType:        deliveryDomain.BounceType(r.BounceType),
		Reason:            r.Reason,
		Payload:           r.Payload,
	}
	if r.MessageID != nil {
		id := uuid.MustParse(*r.MessageID)
		in.MessageID = &id
	}
	if in.Type == deliveryDomain.EventBounced && in.BounceType == "" {
		in.BounceType = deliveryDomain.BounceSoft
	}
	if r.OccurredAt != nil {
		in.OccurredAt = *r.OccurredAt
	}
	return in
}
