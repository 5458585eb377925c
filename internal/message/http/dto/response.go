package dto

import (
	"time"

	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
	messageDomain "github.com/allisson/courier/internal/message/domain"
)

// EventResponse represents a delivery event in API responses.
type EventResponse struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Source          string         `json:"source"`
	ExternalEventID *string        `json:"external_event_id,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
	OccurredAt      time.Time      `json:"occurred_at"`
}

// ListEventsResponse represents the delivery events of a message.
type ListEventsResponse struct {
	Data []EventResponse `json:"data"`
}

// MapEventsToListResponse converts domain events to a list response.
func MapEventsToListResponse(events []*deliveryDomain.Event) ListEventsResponse {
	data := make([]EventResponse, 0, len(events))
	for _, e := range events {
		data = append(data, EventResponse{
			ID:              e.ID.String(),
			Type:            string(e.Type),
			Source:          e.Source,
			ExternalEventID: e.ExternalEventID,
			Payload:         e.Payload,
			OccurredAt:      e.OccurredAt,
		})
	}
	return ListEventsResponse{Data: data}
}

// QueueStatsResponse holds the queue row counts keyed by priority then status.
type QueueStatsResponse struct {
	Data  map[string]map[string]int64 `json:"data"`
	Total int64                       `json:"total"`
}

// MapQueueStatsToResponse converts domain queue statistics to a response.
func MapQueueStatsToResponse(stats messageDomain.QueueStats) QueueStatsResponse {
	data := make(map[string]map[string]int64, len(stats))
	for priority, byStatus := range stats {
		counts := make(map[string]int64, len(byStatus))
		for status, n := range byStatus {
			counts[string(status)] = n
		}
		data[string(priority)] = counts
	}
	return QueueStatsResponse{Data: data, Total: stats.Total()}
}
