package dto

import (
	"time"

	suppressionDomain "github.com/allisson/courier/internal/suppression/domain"
)

// EntryResponse represents a suppression list entry in API responses.
type EntryResponse struct {
	ID          string     `json:"id"`
	Channel     string     `json:"channel"`
	Address     string     `json:"address"`
	Reason      string     `json:"reason"`
	Source      *string    `json:"source,omitempty"`
	CommunityID *int64     `json:"community_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ListEntriesResponse represents a page of suppression list entries.
type ListEntriesResponse struct {
	Data []EntryResponse `json:"data"`
}

// MapEntryToResponse converts a domain entry to an API response.
func MapEntryToResponse(e *suppressionDomain.Entry) EntryResponse {
	return EntryResponse{
		ID:          e.ID.String(),
		Channel:     string(e.Channel),
		Address:     e.Address,
		Reason:      string(e.Reason),
		Source:      e.Source,
		CommunityID: e.CommunityID,
		ExpiresAt:   e.ExpiresAt,
		CreatedAt:   e.CreatedAt,
	}
}

// MapEntriesToListResponse converts domain entries to a list response.
func MapEntriesToListResponse(entries []*suppressionDomain.Entry) ListEntriesResponse {
	data := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		data = append(data, MapEntryToResponse(e))
	}
	return ListEntriesResponse{Data: data}
}
