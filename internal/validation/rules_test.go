package validation

import (
	"testing"

	validation "github.com/jellydator/validation"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/allisson/courier/internal/errors"
	messageDomain "github.com/allisson/courier/internal/message/domain"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name      string
		channel   messageDomain.Channel
		address   string
		shouldErr bool
	}{
		{"valid email", messageDomain.ChannelEmail, "ana@example.com", false},
		{"email without domain", messageDomain.ChannelEmail, "ana@", true},
		{"email blank", messageDomain.ChannelEmail, "", true},
		{"valid e164", messageDomain.ChannelSMS, "+15551234567", false},
		{"e164 without plus", messageDomain.ChannelSMS, "15551234567", true},
		{"e164 leading zero", messageDomain.ChannelSMS, "+0551234567", true},
		{"e164 too long", messageDomain.ChannelSMS, "+1234567890123456", true},
		{"valid push token", messageDomain.ChannelPush, "fcm:APA91bHun4MxP5egoKMwt2KZFBaFUH", false},
		{"push token with spaces", messageDomain.ChannelPush, "abc def", true},
		{"push token blank", messageDomain.ChannelPush, "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.channel, tt.address)
			if tt.shouldErr {
				assert.Error(t, err)
				assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPriorityAndChannel(t *testing.T) {
	assert.NoError(t, validation.Validate("p2", Priority))
	assert.Error(t, validation.Validate("P7", Priority))
	assert.NoError(t, validation.Validate("", Priority))

	assert.NoError(t, validation.Validate("sms", Channel))
	assert.Error(t, validation.Validate("fax", Channel))
}

func TestNotBlank(t *testing.T) {
	assert.Error(t, validation.Validate(" \t ", NotBlank))
	assert.NoError(t, validation.Validate("ana@example.com", NotBlank))
}

func TestWrapValidationError(t *testing.T) {
	assert.NoError(t, WrapValidationError(nil))

	err := WrapValidationError(validation.Validate("fax", Channel))
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
	assert.Contains(t, err.Error(), "must be one of email, sms, push")
}
