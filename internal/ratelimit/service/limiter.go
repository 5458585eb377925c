// Package service implements the shared-state rate limiter used by every dispatcher
// worker and process.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/allisson/courier/internal/ratelimit/domain"
)

const defaultMaxSwapAttempts = 32

// CounterRepository persists counters with optimistic concurrency.
type CounterRepository interface {
	// Get returns the stored counter. A missing key yields a zero counter with Version 0.
	Get(ctx context.Context, key domain.Key) (domain.Counter, error)
	// CompareAndSwap stores next only if the stored version still equals expected.
	// expected == 0 means the key must not exist yet. On success the stored version is
	// expected+1.
	CompareAndSwap(ctx context.Context, next domain.Counter, expected int64) (bool, error)
}

// Limiter decides whether one send may proceed right now.
type Limiter interface {
	TryAdmit(ctx context.Context, key domain.Key, ceiling domain.Ceiling) (domain.Decision, error)
}

// StoreLimiter admits against counters held in a CounterRepository. The admission is
// a read-evaluate-swap loop, so concurrent admitters against the same key never push
// any window beyond its ceiling.
type StoreLimiter struct {
	repo        CounterRepository
	logger      *slog.Logger
	now         func() time.Time
	maxAttempts int
}

// NewStoreLimiter creates a StoreLimiter.
func NewStoreLimiter(repo CounterRepository, logger *slog.Logger) *StoreLimiter {
	return &StoreLimiter{
		repo:        repo,
		logger:      logger,
		now:         time.Now,
		maxAttempts: defaultMaxSwapAttempts,
	}
}

// TryAdmit records one admission for key when every window of ceiling has capacity.
// A denial never modifies the counter.
func (l *StoreLimiter) TryAdmit(
	ctx context.Context,
	key domain.Key,
	ceiling domain.Ceiling,
) (domain.Decision, error) {
	if ceiling.IsUnlimited() {
		return domain.Decision{Admitted: true}, nil
	}

	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Decision{}, err
		}

		current, err := l.repo.Get(ctx, key)
		if err != nil {
			return domain.Decision{}, err
		}
		current.Key = key

		next, decision := domain.Admit(current, ceiling, l.now())
		if !decision.Admitted {
			return decision, nil
		}

		next.Version = current.Version + 1
		swapped, err := l.repo.CompareAndSwap(ctx, next, current.Version)
		if err != nil {
			return domain.Decision{}, err
		}
		if swapped {
			return decision, nil
		}
	}

	if l.logger != nil {
		l.logger.Warn("rate limit counter contention", slog.String("key", key.String()))
	}
	return domain.Decision{}, domain.ErrContention
}
