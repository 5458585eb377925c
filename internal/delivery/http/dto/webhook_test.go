package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
)

func TestPostalWebhook_ToInbound(t *testing.T) {
	tests := []struct {
		name       string
		webhook    PostalWebhook
		ok         bool
		eventType  deliveryDomain.EventType
		bounceType deliveryDomain.BounceType
	}{
		{"delivered", PostalWebhook{Event: "delivered", MessageID: "m1", ID: "e1"}, true, deliveryDomain.EventDelivered, ""},
		{"native name", PostalWebhook{Event: "MessageLinkClicked", MessageID: "m1"}, true, deliveryDomain.EventClicked, ""},
		{"hard bounce", PostalWebhook{Event: "bounced", MessageID: "m1", BounceType: "hard"}, true, deliveryDomain.EventBounced, deliveryDomain.BounceHard},
		{"bounce defaults soft", PostalWebhook{Event: "bounced", MessageID: "m1"}, true, deliveryDomain.EventBounced, deliveryDomain.BounceSoft},
		{"unknown event", PostalWebhook{Event: "held", MessageID: "m1"}, false, "", ""},
		{"missing message id", PostalWebhook{Event: "delivered"}, false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, ok := tt.webhook.ToInbound(nil)
			assert.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, SourcePostal, in.Source)
			assert.Equal(t, tt.eventType, in.Type)
			assert.Equal(t, tt.bounceType, in.BounceType)
			assert.Equal(t, "m1", *in.ExternalMessageID)
		})
	}
}

func TestSNSEnvelope_ToInbound(t *testing.T) {
	t.Run("Success_PermanentBounceIsHard", func(t *testing.T) {
		envelope := SNSEnvelope{
			Type:      "Notification",
			MessageID: "sns-1",
			Message: `{"eventType":"Bounce","mail":{"messageId":"ses-42"},` +
				`"bounce":{"bounceType":"Permanent","bounceSubType":"NoEmail"}}`,
		}

		in, ok, err := envelope.ToInbound()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, deliveryDomain.EventBounced, in.Type)
		assert.True(t, in.IsHardBounce())
		assert.Equal(t, "ses-42", *in.ExternalMessageID)
		assert.Equal(t, "sns-1", *in.ExternalEventID)
		assert.Equal(t, "Permanent NoEmail", in.Reason)
	})

	t.Run("Success_Complaint", func(t *testing.T) {
		envelope := SNSEnvelope{
			Type:    "Notification",
			Message: `{"notificationType":"Complaint","mail":{"messageId":"ses-42"}}`,
		}

		in, ok, err := envelope.ToInbound()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, deliveryDomain.EventComplained, in.Type)
		assert.Nil(t, in.ExternalEventID)
	})

	t.Run("Success_SubscriptionConfirmationIgnored", func(t *testing.T) {
		_, ok, err := (&SNSEnvelope{Type: "SubscriptionConfirmation"}).ToInbound()
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Error_MalformedMessage", func(t *testing.T) {
		_, _, err := (&SNSEnvelope{Type: "Notification", Message: "{"}).ToInbound()
		assert.Error(t, err)
	})
}

func TestTwilioWebhook_ToInbound(t *testing.T) {
	t.Run("Success_Undelivered", func(t *testing.T) {
		w := TwilioWebhook{MessageSid: "SM1", MessageStatus: "undelivered", ErrorCode: "30005", ErrorMessage: "Unknown destination"}

		in, ok := w.ToInbound(nil)
		require.True(t, ok)
		assert.Equal(t, deliveryDomain.EventBounced, in.Type)
		assert.Equal(t, deliveryDomain.BounceSoft, in.BounceType)
		assert.Equal(t, "SM1:undelivered", *in.ExternalEventID)
		assert.Equal(t, "30005 Unknown destination", in.Reason)
	})

	t.Run("Success_Delivered", func(t *testing.T) {
		in, ok := (&TwilioWebhook{MessageSid: "SM1", MessageStatus: "delivered"}).ToInbound(nil)
		require.True(t, ok)
		assert.Equal(t, deliveryDomain.EventDelivered, in.Type)
	})

	t.Run("Success_IntermediateStatusIgnored", func(t *testing.T) {
		_, ok := (&TwilioWebhook{MessageSid: "SM1", MessageStatus: "queued"}).ToInbound(nil)
		assert.False(t, ok)
	})
}

func TestEventRequest_Validate(t *testing.T) {
	id := "0190b4a8-3c1e-7cc0-9d2a-2f1e3f4d5a6b"
	ext := "postal-1"

	assert.NoError(t, (&EventRequest{Source: "postal", Type: "opened", MessageID: &id}).Validate())
	assert.NoError(t, (&EventRequest{Source: "postal", Type: "opened", ExternalMessageID: &ext}).Validate())
	assert.Error(t, (&EventRequest{Source: "postal", Type: "opened"}).Validate())
	assert.Error(t, (&EventRequest{Source: "postal", Type: "read", MessageID: &id}).Validate())

	bad := "42"
	assert.Error(t, (&EventRequest{Source: "postal", Type: "opened", MessageID: &bad}).Validate())

	in := (&EventRequest{Source: "postal", Type: "bounced", MessageID: &id}).ToInbound()
	assert.Equal(t, deliveryDomain.BounceSoft, in.BounceType)
	assert.Equal(t, id, in.MessageID.String())
}
