package dto

import (
	"encoding/json"
	"strings"

	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
)

// Webhook sources.
const (
	SourcePostal   = "postal"
	SourceSES      = "ses"
	SourceTwilio   = "twilio"
	SourceFirebase = "firebase"
)

func optional(values ...string) *string {
	for _, v := range values {
		if v != "" {
			return &v
		}
	}
	return nil
}

// bounceTypeOf maps provider bounce classifications. "Permanent" is the SES
// spelling of a hard bounce.
func bounceTypeOf(values ...string) deliveryDomain.BounceType {
	for _, v := range values {
		switch strings.ToLower(v) {
		case "hard", "permanent":
			return deliveryDomain.BounceHard
		case "soft", "transient", "undetermined":
			return deliveryDomain.BounceSoft
		}
	}
	return deliveryDomain.BounceSoft
}

// eventTypeOf maps normalized and provider-native event names.
func eventTypeOf(name string) (deliveryDomain.EventType, bool) {
	switch strings.ToLower(name) {
	case "sent", "send", "messagesent":
		return deliveryDomain.EventSent, true
	case "delivered", "delivery", "messagedelivered":
		return deliveryDomain.EventDelivered, true
	case "opened", "open", "messageloaded":
		return deliveryDomain.EventOpened, true
	case "clicked", "click", "messagelinkclicked":
		return deliveryDomain.EventClicked, true
	case "bounced", "bounce", "messagebounced", "messagedeliveryfailed":
		return deliveryDomain.EventBounced, true
	case "complained", "complaint":
		return deliveryDomain.EventComplained, true
	default:
		return "", false
	}
}

// PostalWebhook is a Postal delivery webhook.
type PostalWebhook struct {
	Event      string `json:"event"`
	MessageID  string `json:"message_id"`
	ID         string `json:"id"`
	EventID    string `json:"event_id"`
	BounceType string `json:"bounce_type"`
	Reason     string `json:"reason"`
	URL        string `json:"url"`
}

// ToInbound normalizes the webhook. It reports false for events that carry no
// delivery outcome.
func (w *PostalWebhook) ToInbound(payload map[string]any) (deliveryDomain.Inbound, bool) {
	eventType, ok := eventTypeOf(w.Event)
	if !ok || w.MessageID == "" {
		return deliveryDomain.Inbound{}, false
	}
	in := deliveryDomain.Inbound{
		Source:            SourcePostal,
		ExternalEventID:   optional(w.ID, w.EventID),
		ExternalMessageID: &w.MessageID,
		Type:              eventType,
		Reason:            w.Reason,
		Payload:           payload,
	}
	if eventType == deliveryDomain.EventBounced {
		in.BounceType = bounceTypeOf(w.BounceType)
	}
	return in, true
}

// SNSEnvelope is the Amazon SNS notification that carries an SES event.
type SNSEnvelope struct {
	Type      string `json:"Type"`
	MessageID string `json:"MessageId"`
	Message   string `json:"Message"`
}

// SESEvent is the SES event published through SNS.
type SESEvent struct {
	EventType        string `json:"eventType"`
	NotificationType string `json:"notificationType"`
	Mail             struct {
		MessageID string `json:"messageId"`
	} `json:"mail"`
	Bounce struct {
		BounceType    string `json:"bounceType"`
		BounceSubType string `json:"bounceSubType"`
	} `json:"bounce"`
}

// ToInbound normalizes the SNS envelope. Subscription confirmations and unknown
// event types report false.
func (e *SNSEnvelope) ToInbound() (deliveryDomain.Inbound, bool, error) {
	if e.Type != "Notification" {
		return deliveryDomain.Inbound{}, false, nil
	}

	var event SESEvent
	if err := json.Unmarshal([]byte(e.Message), &event); err != nil {
		return deliveryDomain.Inbound{}, false, err
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(e.Message), &payload); err != nil {
		return deliveryDomain.Inbound{}, false, err
	}

	name := event.EventType
	if name == "" {
		name = event.NotificationType
	}
	eventType, ok := eventTypeOf(name)
	if !ok || event.Mail.MessageID == "" {
		return deliveryDomain.Inbound{}, false, nil
	}

	in := deliveryDomain.Inbound{
		Source:            SourceSES,
		ExternalEventID:   optional(e.MessageID),
		ExternalMessageID: &event.Mail.MessageID,
		Type:              eventType,
		Payload:           payload,
	}
	if eventType == deliveryDomain.EventBounced {
		in.BounceType = bounceTypeOf(event.Bounce.BounceType)
		in.Reason = strings.TrimSpace(event.Bounce.BounceType + " " + event.Bounce.BounceSubType)
	}
	return in, true, nil
}

// TwilioWebhook is a Twilio message status callback, sent form encoded.
type TwilioWebhook struct {
	MessageSid    string `form:"MessageSid"`
	MessageStatus string `form:"MessageStatus"`
	ErrorCode     string `form:"ErrorCode"`
	ErrorMessage  string `form:"ErrorMessage"`
}

// ToInbound normalizes the callback. Only delivered, failed and undelivered carry a
// delivery outcome; the latter two are bounces. Twilio sends no event id, so
// (sid, status) identifies the event.
func (w *TwilioWebhook) ToInbound(payload map[string]any) (deliveryDomain.Inbound, bool) {
	if w.MessageSid == "" {
		return deliveryDomain.Inbound{}, false
	}
	in := deliveryDomain.Inbound{
		Source:            SourceTwilio,
		ExternalEventID:   optional(w.MessageSid + ":" + w.MessageStatus),
		ExternalMessageID: &w.MessageSid,
		Payload:           payload,
	}
	switch w.MessageStatus {
	case "delivered":
		in.Type = deliveryDomain.EventDelivered
	case "failed", "undelivered":
		in.Type = deliveryDomain.EventBounced
		in.BounceType = deliveryDomain.BounceSoft
		in.Reason = strings.TrimSpace(w.ErrorCode + " " + w.ErrorMessage)
	default:
		return deliveryDomain.Inbound{}, false
	}
	return in, true
}

// FirebaseWebhook is a push delivery receipt relayed from Firebase.
type FirebaseWebhook struct {
	MessageID  string `json:"message_id"`
	EventType  string `json:"event_type"`
	ID         string `json:"id"`
	EventID    string `json:"event_id"`
	BounceType string `json:"bounce_type"`
	Reason     string `json:"reason"`
}

// ToInbound normalizes the receipt.
func (w *FirebaseWebhook) ToInbound(payload map[string]any) (deliveryDomain.Inbound, bool) {
	eventType, ok := eventTypeOf(w.EventType)
	if !ok || w.MessageID == "" {
		return deliveryDomain.Inbound{}, false
	}
	in := deliveryDomain.Inbound{
		Source:            SourceFirebase,
		ExternalEventID:   optional(w.ID, w.EventID),
		ExternalMessageID: &w.MessageID,
		Type:              eventType,
		Reason:            w.Reason,
		Payload:           payload,
	}
	if eventType == deliveryDomain.EventBounced {
		in.BounceType = bounceTypeOf(w.BounceType)
	}
	return in, true
}
