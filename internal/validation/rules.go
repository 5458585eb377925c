// Package validation holds the jellydator rules shared by the request DTOs and the
// recipient address checks.
package validation

import (
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/courier/internal/errors"
	messageDomain "github.com/allisson/courier/internal/message/domain"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// e164Regex matches "+" followed by up to 15 digits, no leading zero
	e164Regex = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
)

const maxPushTokenLength = 4096

// WrapValidationError marks a validation failure as ErrInvalidInput.
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// Email is a loose address check; deliverability is the gateway's concern.
var Email = validation.NewStringRuleWithError(
	func(s string) bool {
		return emailRegex.MatchString(s)
	},
	validation.NewError("validation_email_format", "must be a valid email address"),
)

// E164 validates an international phone number such as +15551234567.
var E164 = validation.NewStringRuleWithError(
	func(s string) bool {
		return e164Regex.MatchString(s)
	},
	validation.NewError("validation_e164_format", "must be a phone number in E.164 format"),
)

// PushToken validates a device token: non-blank, no whitespace, bounded length.
var PushToken = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != "" && !strings.ContainsAny(s, " \t\r\n") && len(s) <= maxPushTokenLength
	},
	validation.NewError("validation_push_token", "must be a valid device token"),
)

// NotBlank rejects whitespace-only strings.
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// AddressRules returns the rules a recipient address must satisfy on channel.
func AddressRules(channel messageDomain.Channel) []validation.Rule {
	switch channel {
	case messageDomain.ChannelEmail:
		return []validation.Rule{validation.Required, Email}
	case messageDomain.ChannelSMS:
		return []validation.Rule{validation.Required, E164}
	case messageDomain.ChannelPush:
		return []validation.Rule{validation.Required, PushToken}
	default:
		return []validation.Rule{validation.Required}
	}
}

// ValidateAddress checks a recipient address for channel. The error is wrapped as
// ErrInvalidInput.
func ValidateAddress(channel messageDomain.Channel, address string) error {
	return WrapValidationError(validation.Validate(address, AddressRules(channel)...))
}

// Priority accepts P0 through P4, case-insensitively. Empty values are left to Required.
var Priority = parsedBy(func(s string) error {
	_, err := messageDomain.ParsePriority(s)
	return err
}, "validation_priority", "must be one of P0, P1, P2, P3, P4")

// Channel accepts email, sms or push.
var Channel = parsedBy(func(s string) error {
	_, err := messageDomain.ParseChannel(s)
	return err
}, "validation_channel", "must be one of email, sms, push")

func parsedBy(parse func(string) error, code, message string) validation.Rule {
	return validation.By(func(value interface{}) error {
		s, ok := value.(string)
		if !ok || s == "" {
			return nil
		}
		if parse(s) != nil {
			return validation.NewError(code, message)
		}
		return nil
	})
}
