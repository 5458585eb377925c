// Package repository provides suppression list persistence implementations.
package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	messageDomain "github.com/allisson/courier/internal/message/domain"
	suppressionDomain "github.com/allisson/courier/internal/suppression/domain"
)

type entryKey struct {
	channel messageDomain.Channel
	address string
	scope   int64
}

type bounceKey struct {
	channel messageDomain.Channel
	address string
}

// MemorySuppressionRepository keeps the suppression list and soft-bounce counters in
// process memory.
type MemorySuppressionRepository struct {
	mu      sync.RWMutex
	entries map[entryKey]*suppressionDomain.Entry
	bounces map[bounceKey]int
}

// NewMemorySuppressionRepository creates an empty MemorySuppressionRepository.
func NewMemorySuppressionRepository() *MemorySuppressionRepository {
	return &MemorySuppressionRepository{
		entries: make(map[entryKey]*suppressionDomain.Entry),
		bounces: make(map[bounceKey]int),
	}
}

func (r *MemorySuppressionRepository) lookup(
	channel messageDomain.Channel,
	address string,
	communityID *int64,
	now time.Time,
) *suppressionDomain.Entry {
	scopes := []int64{0}
	if communityID != nil {
		scopes = append(scopes, *communityID)
	}
	for _, c := range []messageDomain.Channel{channel, suppressionDomain.ChannelAll} {
		for _, scope := range scopes {
			e, ok := r.entries[entryKey{channel: c, address: address, scope: scope}]
			if ok && e.IsActive(now) {
				return e
			}
		}
	}
	return nil
}

// FindActive returns the first active entry matching the lookup.
func (r *MemorySuppressionRepository) FindActive(
	_ context.Context,
	channel messageDomain.Channel,
	address string,
	communityID *int64,
	now time.Time,
) (*suppressionDomain.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e := r.lookup(channel, address, communityID, now)
	if e == nil {
		return nil, suppressionDomain.ErrSuppressionNotFound
	}
	cp := *e
	return &cp, nil
}

// FindActiveAddresses returns the reasons of the suppressed addresses.
func (r *MemorySuppressionRepository) FindActiveAddresses(
	_ context.Context,
	channel messageDomain.Channel,
	addresses []string,
	communityID *int64,
	now time.Time,
) (map[string]suppressionDomain.Reason, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found := make(map[string]suppressionDomain.Reason)
	for _, a := range addresses {
		if e := r.lookup(channel, a, communityID, now); e != nil {
			found[a] = e.Reason
		}
	}
	return found, nil
}

// Upsert inserts or refreshes an entry.
func (r *MemorySuppressionRepository) Upsert(_ context.Context, entry *suppressionDomain.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := entryKey{
		channel: entry.Channel,
		address: entry.Address,
		scope:   suppressionDomain.ScopeID(entry.CommunityID),
	}
	if existing, ok := r.entries[key]; ok {
		existing.Reason = entry.Reason
		existing.Source = entry.Source
		existing.ExpiresAt = entry.ExpiresAt
		existing.UpdatedAt = entry.UpdatedAt
		return nil
	}
	cp := *entry
	r.entries[key] = &cp
	return nil
}

// Delete removes an entry. Missing entries return ErrSuppressionNotFound.
func (r *MemorySuppressionRepository) Delete(
	_ context.Context,
	channel messageDomain.Channel,
	address string,
	communityID *int64,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := entryKey{channel: channel, address: address, scope: suppressionDomain.ScopeID(communityID)}
	if _, ok := r.entries[key]; !ok {
		return suppressionDomain.ErrSuppressionNotFound
	}
	delete(r.entries, key)
	return nil
}

// DeleteExpired removes entries whose expiry is at or before now.
func (r *MemorySuppressionRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k, e := range r.entries {
		if !e.IsActive(now) {
			delete(r.entries, k)
			n++
		}
	}
	return n, nil
}

// List returns entries ordered by creation time.
func (r *MemorySuppressionRepository) List(_ context.Context, offset, limit int) ([]*suppressionDomain.Entry, error) {
	r.mu.RLock()
	all := make([]*suppressionDomain.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		cp := *e
		all = append(all, &cp)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.String() < all[j].ID.String()
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []*suppressionDomain.Entry{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// Increment adds one soft bounce for the address.
func (r *MemorySuppressionRepository) Increment(
	_ context.Context,
	channel messageDomain.Channel,
	address string,
	_ time.Time,
) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := bounceKey{channel: channel, address: address}
	r.bounces[key]++
	return r.bounces[key], nil
}

// Reset clears the soft-bounce counter of the address.
func (r *MemorySuppressionRepository) Reset(_ context.Context, channel messageDomain.Channel, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.bounces, bounceKey{channel: channel, address: address})
	return nil
}
