// Package dto provides data transfer objects for the suppression list endpoints.
package dto

import (
	"time"

	validation "github.com/jellydator/validation"

	messageDomain "github.com/allisson/courier/internal/message/domain"
	suppressionDomain "github.com/allisson/courier/internal/suppression/domain"
	"github.com/allisson/courier/internal/suppression/usecase"
	customValidation "github.com/allisson/courier/internal/validation"
)

var channels = []interface{}{
	string(messageDomain.ChannelEmail),
	string(messageDomain.ChannelSMS),
	string(messageDomain.ChannelPush),
	string(suppressionDomain.ChannelAll),
}

var reasons = []interface{}{
	string(suppressionDomain.ReasonHardBounce),
	string(suppressionDomain.ReasonSoftBounce),
	string(suppressionDomain.ReasonComplaint),
	string(suppressionDomain.ReasonUnsubscribe),
	string(suppressionDomain.ReasonManual),
	string(suppressionDomain.ReasonLegal),
}

// SuppressRequest adds an address to the suppression list.
type SuppressRequest struct {
	Channel     string     `json:"channel"`
	Address     string     `json:"address"`
	Reason      string     `json:"reason"`
	Source      *string    `json:"source,omitempty"`
	CommunityID *int64     `json:"community_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Validate checks the suppress request.
func (r *SuppressRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Channel, validation.Required, validation.In(channels...)),
		validation.Field(&r.Address, validation.Required, customValidation.NotBlank),
		validation.Field(&r.Reason, validation.Required, validation.In(reasons...)),
		validation.Field(&r.ExpiresAt, validation.By(func(value interface{}) error {
			if t, ok := value.(*time.Time); ok && t != nil && !t.After(time.Now()) {
				return validation.NewError("validation_expires_at", "must be in the future")
			}
			return nil
		})),
	)
}

// ToInput converts the request to the use case input.
func (r *SuppressRequest) ToInput() usecase.SuppressInput {
	return usecase.SuppressInput{
		Channel:     messageDomain.Channel(r.Channel),
		Address:     r.Address,
		Reason:      suppressionDomain.Reason(r.Reason),
		Source:      r.Source,
		CommunityID: r.CommunityID,
		ExpiresAt:   r.ExpiresAt,
	}
}

// UnsuppressRequest identifies the entry to remove. It is bound from the query string.
type UnsuppressRequest struct {
	Channel     string `form:"channel"`
	Address     string `form:"address"`
	CommunityID *int64 `form:"community_id"`
}

// Validate checks the unsuppress request.
func (r *UnsuppressRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Channel, validation.Required, validation.In(channels...)),
		validation.Field(&r.Address, validation.Required, customValidation.NotBlank),
	)
}
