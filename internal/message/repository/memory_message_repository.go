// Package repository provides persistence for message queue entries.
package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	messageDomain "github.com/allisson/courier/internal/message/domain"
)

// MemoryMessageRepository keeps the queue in process memory. A single mutex makes
// every operation atomic, which gives the claim the same exclusivity as the SQL
// conditional update. It also records each row's status history.
type MemoryMessageRepository struct {
	mu       sync.Mutex
	messages map[uuid.UUID]*messageDomain.Message
	history  map[uuid.UUID][]messageDomain.Status
}

// NewMemoryMessageRepository creates an empty MemoryMessageRepository.
func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		messages: make(map[uuid.UUID]*messageDomain.Message),
		history:  make(map[uuid.UUID][]messageDomain.Status),
	}
}

func clone(m *messageDomain.Message) *messageDomain.Message {
	c := *m
	if m.Variables != nil {
		c.Variables = make(map[string]any, len(m.Variables))
		for k, v := range m.Variables {
			c.Variables[k] = v
		}
	}
	return &c
}

func (r *MemoryMessageRepository) setStatus(m *messageDomain.Message, status messageDomain.Status) {
	m.Status = status
	r.history[m.ID] = append(r.history[m.ID], status)
}

// Create inserts a message.
func (r *MemoryMessageRepository) Create(_ context.Context, msg *messageDomain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages[msg.ID] = clone(msg)
	r.history[msg.ID] = []messageDomain.Status{msg.Status}
	return nil
}

// CreateBatch inserts messages.
func (r *MemoryMessageRepository) CreateBatch(ctx context.Context, msgs []*messageDomain.Message) error {
	for _, msg := range msgs {
		if err := r.Create(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a message by id.
func (r *MemoryMessageRepository) Get(_ context.Context, id uuid.UUID) (*messageDomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return nil, messageDomain.ErrMessageNotFound
	}
	return clone(m), nil
}

// GetByExternalID returns the message a provider knows under externalID.
func (r *MemoryMessageRepository) GetByExternalID(_ context.Context, externalID string) (*messageDomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.messages {
		if m.ExternalID != nil && *m.ExternalID == externalID {
			return clone(m), nil
		}
	}
	return nil, messageDomain.ErrMessageNotFound
}

func claimable(m *messageDomain.Message, req messageDomain.ClaimRequest) bool {
	if m.Priority != req.Priority {
		return false
	}
	switch m.Status {
	case messageDomain.StatusPending, messageDomain.StatusRetryScheduled:
		if m.ScheduledFor.After(req.Now) {
			return false
		}
		return m.NextRetryAt == nil || !m.NextRetryAt.After(req.Now)
	case messageDomain.StatusLocked, messageDomain.StatusSending:
		return m.LockedAt != nil && m.LockedAt.Before(req.StaleBefore)
	default:
		return false
	}
}

// ClaimDue locks up to req.Limit due rows of req.Priority, oldest schedule first.
// Rows whose lock is older than req.StaleBefore are reclaimed.
func (r *MemoryMessageRepository) ClaimDue(
	_ context.Context,
	req messageDomain.ClaimRequest,
) ([]*messageDomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := make([]*messageDomain.Message, 0)
	for _, m := range r.messages {
		if claimable(m, req) {
			candidates = append(candidates, m)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].ScheduledFor.Equal(candidates[j].ScheduledFor) {
			return candidates[i].ScheduledFor.Before(candidates[j].ScheduledFor)
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	if req.Limit > 0 && len(candidates) > req.Limit {
		candidates = candidates[:req.Limit]
	}

	claimed := make([]*messageDomain.Message, 0, len(candidates))
	for _, m := range candidates {
		workerID, token, at := req.Lock.WorkerID, req.Lock.Token, req.Lock.At
		m.LockedBy = &workerID
		m.LockToken = &token
		m.LockedAt = &at
		m.UpdatedAt = at
		r.setStatus(m, messageDomain.StatusLocked)
		claimed = append(claimed, clone(m))
	}
	return claimed, nil
}

// MarkSending moves a locked row to sending if token still holds the lock. The lock
// age restarts at at, so only the gateway call counts against the stale window.
func (r *MemoryMessageRepository) MarkSending(_ context.Context, id, token uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return messageDomain.ErrMessageNotFound
	}
	if !m.HoldsLock(token) || m.Status != messageDomain.StatusLocked {
		return messageDomain.ErrLockLost
	}
	m.LockedAt = &at
	m.UpdatedAt = at
	r.setStatus(m, messageDomain.StatusSending)
	return nil
}

// Complete writes the attempt outcome and releases the lock if token still holds it.
func (r *MemoryMessageRepository) Complete(
	_ context.Context,
	id, token uuid.UUID,
	c messageDomain.Completion,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return messageDomain.ErrMessageNotFound
	}
	if !m.HoldsLock(token) {
		return messageDomain.ErrLockLost
	}
	if !messageDomain.CanTransition(m.Status, c.Status) {
		return messageDomain.ErrInvalidTransition
	}
	m.Apply(c)
	r.history[id] = append(r.history[id], c.Status)
	return nil
}

// Cancel moves a pending or retry-scheduled row to cancelled.
func (r *MemoryMessageRepository) Cancel(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return messageDomain.ErrMessageNotFound
	}
	if !m.Status.IsCancellable() {
		return messageDomain.ErrNotCancellable
	}
	reason := messageDomain.ReasonCancelled
	m.LastError = &reason
	m.NextRetryAt = nil
	m.UpdatedAt = at
	r.setStatus(m, messageDomain.StatusCancelled)
	return nil
}

func (r *MemoryMessageRepository) mark(id uuid.UUID, at time.Time, field func(*messageDomain.Message) **time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return false, messageDomain.ErrMessageNotFound
	}
	ts := field(m)
	if *ts != nil {
		return false, nil
	}
	*ts = &at
	m.UpdatedAt = at
	return true, nil
}

// MarkDelivered sets delivered_at once. It reports whether this call set it.
func (r *MemoryMessageRepository) MarkDelivered(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.mark(id, at, func(m *messageDomain.Message) **time.Time { return &m.DeliveredAt })
}

// MarkOpened sets opened_at to the first open.
func (r *MemoryMessageRepository) MarkOpened(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.mark(id, at, func(m *messageDomain.Message) **time.Time { return &m.OpenedAt })
}

// MarkClicked sets clicked_at to the first click.
func (r *MemoryMessageRepository) MarkClicked(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.mark(id, at, func(m *messageDomain.Message) **time.Time { return &m.ClickedAt })
}

// MarkBounced records the bounce reason. bounced_at keeps the first bounce.
func (r *MemoryMessageRepository) MarkBounced(_ context.Context, id uuid.UUID, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return messageDomain.ErrMessageNotFound
	}
	if m.BouncedAt == nil {
		m.BouncedAt = &at
	}
	m.BounceReason = &reason
	m.UpdatedAt = at
	return nil
}

// CountStaleLocks counts locked or sending rows whose lock predates staleBefore.
func (r *MemoryMessageRepository) CountStaleLocks(_ context.Context, staleBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, m := range r.messages {
		if (m.Status == messageDomain.StatusLocked || m.Status == messageDomain.StatusSending) &&
			m.LockedAt != nil && m.LockedAt.Before(staleBefore) {
			n++
		}
	}
	return n, nil
}

// CountByPriorityStatus returns the row count of every (priority, status) pair,
// ordered by priority then status.
func (r *MemoryMessageRepository) CountByPriorityStatus(_ context.Context) ([]messageDomain.QueueCount, error) {
	r.mu.Lock()
	type pair struct {
		priority messageDomain.Priority
		status   messageDomain.Status
	}
	counts := make(map[pair]int64)
	for _, m := range r.messages {
		counts[pair{m.Priority, m.Status}]++
	}
	r.mu.Unlock()

	out := make([]messageDomain.QueueCount, 0, len(counts))
	for p, n := range counts {
		out = append(out, messageDomain.QueueCount{Priority: p.priority, Status: p.status, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

// History returns every status the row has been in, oldest first.
func (r *MemoryMessageRepository) History(id uuid.UUID) []messageDomain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]messageDomain.Status(nil), r.history[id]...)
}
