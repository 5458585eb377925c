// Package repository persists delivery events.
package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
)

type dedupKey struct {
	source  string
	eventID string
}

// MemoryEventRepository keeps delivery events in process memory.
type MemoryEventRepository struct {
	mu        sync.Mutex
	byMessage map[uuid.UUID][]*deliveryDomain.Event
	seen      map[dedupKey]struct{}
}

// NewMemoryEventRepository creates an empty MemoryEventRepository.
func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{
		byMessage: make(map[uuid.UUID][]*deliveryDomain.Event),
		seen:      make(map[dedupKey]struct{}),
	}
}

// Append stores the event, or returns ErrDuplicateEvent when its (source,
// external_event_id) was already stored. The event and its dedup key are taken
// back if the surrounding unit of work fails.
func (r *MemoryEventRepository) Append(ctx context.Context, event *deliveryDomain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var key *dedupKey
	if event.ExternalEventID != nil {
		key = &dedupKey{source: event.Source, eventID: *event.ExternalEventID}
		if _, dup := r.seen[*key]; dup {
			return deliveryDomain.ErrDuplicateEvent
		}
		r.seen[*key] = struct{}{}
	}
	stored := *event
	r.byMessage[event.MessageID] = append(r.byMessage[event.MessageID], &stored)

	database.OnRollback(ctx, func() { r.remove(key, event.MessageID, event.ID) })
	return nil
}

func (r *MemoryEventRepository) remove(key *dedupKey, messageID, eventID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if key != nil {
		delete(r.seen, *key)
	}
	events := r.byMessage[messageID]
	for i, e := range events {
		if e.ID == eventID {
			r.byMessage[messageID] = append(events[:i], events[i+1:]...)
			break
		}
	}
}

// ListByMessage returns the events of a message in occurrence order.
func (r *MemoryEventRepository) ListByMessage(_ context.Context, messageID uuid.UUID) ([]*deliveryDomain.Event, error) {
	r.mu.Lock()
	events := make([]*deliveryDomain.Event, 0, len(r.byMessage[messageID]))
	for _, e := range r.byMessage[messageID] {
		c := *e
		events = append(events, &c)
	}
	r.mu.Unlock()

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
	return events, nil
}
