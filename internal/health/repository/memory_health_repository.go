// Package repository persists channel health snapshots.
package repository

import (
	"context"
	"sort"
	"sync"

	healthDomain "github.com/allisson/courier/internal/health/domain"
)

// MemoryHealthRepository keeps health snapshots in process memory.
type MemoryHealthRepository struct {
	mu      sync.Mutex
	records map[healthDomain.Key]healthDomain.Record
}

// NewMemoryHealthRepository creates an empty MemoryHealthRepository.
func NewMemoryHealthRepository() *MemoryHealthRepository {
	return &MemoryHealthRepository{records: make(map[healthDomain.Key]healthDomain.Record)}
}

// Upsert stores the record of its (channel, gateway).
func (r *MemoryHealthRepository) Upsert(_ context.Context, record healthDomain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[healthDomain.Key{Channel: record.Channel, Gateway: record.Gateway}] = record
	return nil
}

// List returns every stored record ordered by channel and gateway.
func (r *MemoryHealthRepository) List(_ context.Context) ([]healthDomain.Record, error) {
	r.mu.Lock()
	records := make([]healthDomain.Record, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	r.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].Channel != records[j].Channel {
			return records[i].Channel < records[j].Channel
		}
		return records[i].Gateway < records[j].Gateway
	})
	return records, nil
}
