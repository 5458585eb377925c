// Package dto provides data transfer objects for the message HTTP endpoints.
package dto

import (
	"time"

	validation "github.com/jellydator/validation"

	messageDomain "github.com/allisson/courier/internal/message/domain"
	customValidation "github.com/allisson/courier/internal/validation"
)

// MaxBulkRecipients bounds a single bulk request.
const MaxBulkRecipients = 10000

var messageTypes = []interface{}{
	string(messageDomain.MessageTypeEmergency),
	string(messageDomain.MessageTypeAlert),
	string(messageDomain.MessageTypeNewsletter),
	string(messageDomain.MessageTypeCampaign),
	string(messageDomain.MessageTypeTransactional),
}

// EnqueueRequest is a single message intent.
type EnqueueRequest struct {
	Priority         string         `json:"priority"`
	MessageType      string         `json:"message_type"`
	Channel          string         `json:"channel"`
	CommunityID      *int64         `json:"community_id,omitempty"`
	RecipientAddress string         `json:"recipient_address"`
	RecipientID      *int64         `json:"recipient_id,omitempty"`
	RecipientType    *string        `json:"recipient_type,omitempty"`
	Subject          *string        `json:"subject,omitempty"`
	Body             *string        `json:"body,omitempty"`
	Template         *string        `json:"template,omitempty"`
	Variables        map[string]any `json:"variables,omitempty"`
	SourceType       *string        `json:"source_type,omitempty"`
	SourceID         *int64         `json:"source_id,omitempty"`
	IPPool           *string        `json:"ip_pool,omitempty"`
	ScheduledFor     *time.Time     `json:"scheduled_for,omitempty"`
}

// Validate checks the routing fields. Address validity is a per-recipient outcome
// and is left to the use case.
func (r *EnqueueRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Priority, validation.Required, customValidation.Priority),
		validation.Field(&r.MessageType, validation.Required, validation.In(messageTypes...)),
		validation.Field(&r.Channel, validation.Required, customValidation.Channel),
		validation.Field(&r.RecipientAddress, validation.Required),
	)
}

// ToInput converts the request to the domain input.
func (r *EnqueueRequest) ToInput() messageDomain.EnqueueInput {
	return messageDomain.EnqueueInput{
		Priority:         messageDomain.Priority(r.Priority),
		MessageType:      messageDomain.MessageType(r.MessageType),
		Channel:          messageDomain.Channel(r.Channel),
		CommunityID:      r.CommunityID,
		RecipientAddress: r.RecipientAddress,
		RecipientID:      r.RecipientID,
		RecipientType:    r.RecipientType,
		Subject:          r.Subject,
		Body:             r.Body,
		Template:         r.Template,
		Variables:        r.Variables,
		SourceType:       r.SourceType,
		SourceID:         r.SourceID,
		IPPool:           r.IPPool,
		ScheduledFor:     r.ScheduledFor,
	}
}

// RecipientRequest is one addressee of a bulk request.
type RecipientRequest struct {
	Address   string         `json:"address"`
	ID        *int64         `json:"id,omitempty"`
	Type      *string        `json:"type,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
}

// BulkEnqueueRequest is a list of recipients sharing content and routing.
type BulkEnqueueRequest struct {
	Priority        string             `json:"priority"`
	MessageType     string             `json:"message_type"`
	Channel         string             `json:"channel"`
	CommunityID     *int64             `json:"community_id,omitempty"`
	Subject         *string            `json:"subject,omitempty"`
	Body            *string            `json:"body,omitempty"`
	Template        *string            `json:"template,omitempty"`
	SharedVariables map[string]any     `json:"shared_variables,omitempty"`
	SourceType      *string            `json:"source_type,omitempty"`
	SourceID        *int64             `json:"source_id,omitempty"`
	IPPool          *string            `json:"ip_pool,omitempty"`
	ScheduledFor    *time.Time         `json:"scheduled_for,omitempty"`
	Recipients      []RecipientRequest `json:"recipients"`
}

// Validate checks the routing fields and the recipient count.
func (r *BulkEnqueueRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Priority, validation.Required, customValidation.Priority),
		validation.Field(&r.MessageType, validation.Required, validation.In(messageTypes...)),
		validation.Field(&r.Channel, validation.Required, customValidation.Channel),
		validation.Field(&r.Recipients, validation.Required, validation.Length(1, MaxBulkRecipients)),
	)
}

// ToInput converts the request to the domain input.
func (r *BulkEnqueueRequest) ToInput() messageDomain.BulkEnqueueInput {
	recipients := make([]messageDomain.Recipient, 0, len(r.Recipients))
	for _, rr := range r.Recipients {
		recipients = append(recipients, messageDomain.Recipient{
			Address:   rr.Address,
			ID:        rr.ID,
			Type:      rr.Type,
			Variables: rr.Variables,
		})
	}
	return messageDomain.BulkEnqueueInput{
		Priority:        messageDomain.Priority(r.Priority),
		MessageType:     messageDomain.MessageType(r.MessageType),
		Channel:         messageDomain.Channel(r.Channel),
		CommunityID:     r.CommunityID,
		Subject:         r.Subject,
		Body:            r.Body,
		Template:        r.Template,
		SharedVariables: r.SharedVariables,
		SourceType:      r.SourceType,
		SourceID:        r.SourceID,
		IPPool:          r.IPPool,
		ScheduledFor:    r.ScheduledFor,
		Recipients:      recipients,
	}
}
