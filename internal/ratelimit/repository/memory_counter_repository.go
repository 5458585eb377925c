// Package repository provides rate limit counter persistence implementations.
package repository

import (
	"context"
	"sync"

	"github.com/allisson/courier/internal/ratelimit/domain"
)

// MemoryCounterRepository keeps counters in process memory. It is shared by every
// worker of a single process and backs the "memory" database driver.
type MemoryCounterRepository struct {
	mu       sync.Mutex
	counters map[domain.Key]domain.Counter
}

// NewMemoryCounterRepository creates an empty MemoryCounterRepository.
func NewMemoryCounterRepository() *MemoryCounterRepository {
	return &MemoryCounterRepository{counters: make(map[domain.Key]domain.Counter)}
}

// Get returns the stored counter or a zero counter.
func (r *MemoryCounterRepository) Get(_ context.Context, key domain.Key) (domain.Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.counters[key]
	if !ok {
		return domain.Counter{Key: key}, nil
	}
	return c, nil
}

// CompareAndSwap stores next when the stored version equals expected.
func (r *MemoryCounterRepository) CompareAndSwap(
	_ context.Context,
	next domain.Counter,
	expected int64,
) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.counters[next.Key]
	if !ok && expected != 0 {
		return false, nil
	}
	if ok && current.Version != expected {
		return false, nil
	}

	next.Version = expected + 1
	r.counters[next.Key] = next
	return true, nil
}
