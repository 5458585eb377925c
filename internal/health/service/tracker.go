// Package service implements the channel health tracker: rolling success-rate and
// latency statistics per gateway plus a consecutive-failure circuit breaker.
package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/allisson/courier/internal/config"
	healthDomain "github.com/allisson/courier/internal/health/domain"
	messageDomain "github.com/allisson/courier/internal/message/domain"
)

const (
	bucketCount   = 24 * 60 // one bucket per minute over 24h
	window1h      = 60
	window24h     = bucketCount
	secondsPerMin = 60
)

// ChangeListener is called, outside the tracker lock, whenever a gateway flips
// between healthy and unhealthy.
type ChangeListener func(ctx context.Context, record healthDomain.Record)

// HealthChecker answers failover questions for the router.
type HealthChecker interface {
	IsHealthy(channel messageDomain.Channel, gateway string) bool
}

type bucket struct {
	minute     int64
	success    int
	failure    int
	latencySum int64
	latencyN   int64
}

type gatewayState struct {
	mu                  sync.Mutex
	buckets             [bucketCount]bucket
	consecutiveFailures int
	openedAt            time.Time
	lastCheckAt         time.Time
	lastFailureAt       *time.Time
	failureReason       *string
	maxRatePerSec       int
	healthy             bool
}

// Tracker keeps per-gateway health in memory. Every mutation of a gateway's state
// happens under that gateway's mutex.
type Tracker struct {
	policy   config.HealthPolicy
	states   sync.Map // healthDomain.Key -> *gatewayState
	listener ChangeListener
	now      func() time.Time
}

// NewTracker creates a Tracker. listener may be nil.
func NewTracker(policy config.HealthPolicy, listener ChangeListener) *Tracker {
	return &Tracker{
		policy:   policy,
		listener: listener,
		now:      time.Now,
	}
}

func (t *Tracker) state(channel messageDomain.Channel, gateway string) *gatewayState {
	key := healthDomain.Key{Channel: channel, Gateway: gateway}
	if v, ok := t.states.Load(key); ok {
		return v.(*gatewayState)
	}
	v, _ := t.states.LoadOrStore(key, &gatewayState{healthy: true})
	return v.(*gatewayState)
}

func (s *gatewayState) bucketAt(minute int64) *bucket {
	b := &s.buckets[minute%bucketCount]
	if b.minute != minute {
		*b = bucket{minute: minute}
	}
	return b
}

func (s *gatewayState) totals(nowMinute int64, window int) (success, failure int, latencySum, latencyN int64) {
	for i := 0; i < window; i++ {
		minute := nowMinute - int64(i)
		if minute < 0 {
			break
		}
		b := &s.buckets[minute%bucketCount]
		if b.minute != minute {
			continue
		}
		success += b.success
		failure += b.failure
		latencySum += b.latencySum
		latencyN += b.latencyN
	}
	return success, failure, latencySum, latencyN
}

func (t *Tracker) circuitOpen(s *gatewayState, now time.Time) bool {
	if t.policy.FailureThreshold <= 0 || s.consecutiveFailures < t.policy.FailureThreshold {
		return false
	}
	return now.Before(s.openedAt.Add(t.policy.OpenTimeout))
}

func (t *Tracker) healthyLocked(s *gatewayState, now time.Time) bool {
	if t.circuitOpen(s, now) {
		return false
	}
	success, failure, _, _ := s.totals(minuteOf(now), window1h)
	samples := success + failure
	if samples == 0 || samples < t.policy.MinSamples {
		return true
	}
	return float64(success)/float64(samples) >= t.policy.MinSuccessRate
}

func minuteOf(now time.Time) int64 {
	return now.Unix() / secondsPerMin
}

// record applies fn to the gateway state and notifies the listener on a health flip.
func (t *Tracker) record(
	ctx context.Context,
	channel messageDomain.Channel,
	gateway string,
	fn func(s *gatewayState, now time.Time),
) {
	now := t.now().UTC()
	s := t.state(channel, gateway)

	s.mu.Lock()
	fn(s, now)
	s.lastCheckAt = now
	healthy := t.healthyLocked(s, now)
	changed := healthy != s.healthy
	s.healthy = healthy
	var snapshot healthDomain.Record
	if changed {
		snapshot = t.snapshotLocked(channel, gateway, s, now)
	}
	s.mu.Unlock()

	if changed && t.listener != nil {
		t.listener(ctx, snapshot)
	}
}

// RecordSuccess counts a successful send. It closes the circuit.
func (t *Tracker) RecordSuccess(
	ctx context.Context,
	channel messageDomain.Channel,
	gateway string,
	latency time.Duration,
) {
	t.record(ctx, channel, gateway, func(s *gatewayState, now time.Time) {
		b := s.bucketAt(minuteOf(now))
		b.success++
		if latency > 0 {
			b.latencySum += latency.Milliseconds()
			b.latencyN++
		}
		s.consecutiveFailures = 0
		s.openedAt = time.Time{}
	})
}

// RecordFailure counts a failed send. Reaching the failure threshold opens the
// circuit; a failed trial request after the open timeout reopens it.
func (t *Tracker) RecordFailure(
	ctx context.Context,
	channel messageDomain.Channel,
	gateway string,
	reason string,
	latency time.Duration,
) {
	t.record(ctx, channel, gateway, func(s *gatewayState, now time.Time) {
		b := s.bucketAt(minuteOf(now))
		b.failure++
		if latency > 0 {
			b.latencySum += latency.Milliseconds()
			b.latencyN++
		}
		s.consecutiveFailures++
		s.lastFailureAt = &now
		s.failureReason = &reason

		if t.policy.FailureThreshold > 0 && s.consecutiveFailures >= t.policy.FailureThreshold {
			if s.openedAt.IsZero() || !now.Before(s.openedAt.Add(t.policy.OpenTimeout)) {
				s.openedAt = now
			}
		}
	})
}

// RecordBounce counts a provider-reported bounce against the success rate without
// touching the circuit.
func (t *Tracker) RecordBounce(ctx context.Context, channel messageDomain.Channel, gateway, reason string) {
	t.record(ctx, channel, gateway, func(s *gatewayState, now time.Time) {
		s.bucketAt(minuteOf(now)).failure++
		s.lastFailureAt = &now
		s.failureReason = &reason
	})
}

// Touch marks the gateway as observed without changing statistics.
func (t *Tracker) Touch(ctx context.Context, channel messageDomain.Channel, gateway string) {
	t.record(ctx, channel, gateway, func(*gatewayState, time.Time) {})
}

// SetCapacity records the configured per-second ceiling of a gateway.
func (t *Tracker) SetCapacity(channel messageDomain.Channel, gateway string, maxPerSec int) {
	s := t.state(channel, gateway)
	s.mu.Lock()
	s.maxRatePerSec = maxPerSec
	s.mu.Unlock()
}

// IsHealthy reports whether the router should keep using the gateway. Unknown
// gateways are healthy.
func (t *Tracker) IsHealthy(channel messageDomain.Channel, gateway string) bool {
	v, ok := t.states.Load(healthDomain.Key{Channel: channel, Gateway: gateway})
	if !ok {
		return true
	}
	s := v.(*gatewayState)

	s.mu.Lock()
	defer s.mu.Unlock()
	return t.healthyLocked(s, t.now().UTC())
}

func (t *Tracker) snapshotLocked(
	channel messageDomain.Channel,
	gateway string,
	s *gatewayState,
	now time.Time,
) healthDomain.Record {
	nowMinute := minuteOf(now)
	s1, f1, latSum, latN := s.totals(nowMinute, window1h)
	s24, f24, _, _ := s.totals(nowMinute, window24h)
	sNow, fNow, _, _ := s.totals(nowMinute, 1)

	record := healthDomain.Record{
		Channel:             channel,
		Gateway:             gateway,
		Healthy:             t.healthyLocked(s, now),
		CircuitOpen:         t.circuitOpen(s, now),
		SuccessRate1h:       rate(s1, f1),
		SuccessRate24h:      rate(s24, f24),
		Samples1h:           s1 + f1,
		CurrentRatePerSec:   float64(sNow+fNow) / secondsPerMin,
		MaxRatePerSec:       s.maxRatePerSec,
		ConsecutiveFailures: s.consecutiveFailures,
		LastCheckAt:         s.lastCheckAt,
		LastFailureAt:       s.lastFailureAt,
		FailureReason:       s.failureReason,
	}
	if latN > 0 {
		record.AvgLatencyMs = latSum / latN
	}
	return record
}

func rate(success, failure int) float64 {
	if success+failure == 0 {
		return 1
	}
	return float64(success) / float64(success+failure)
}

// Get returns the current record of a gateway.
func (t *Tracker) Get(channel messageDomain.Channel, gateway string) (healthDomain.Record, bool) {
	v, ok := t.states.Load(healthDomain.Key{Channel: channel, Gateway: gateway})
	if !ok {
		return healthDomain.Record{}, false
	}
	s := v.(*gatewayState)

	s.mu.Lock()
	defer s.mu.Unlock()
	return t.snapshotLocked(channel, gateway, s, t.now().UTC()), true
}

// Snapshot returns the records of every known gateway ordered by channel and name.
func (t *Tracker) Snapshot() []healthDomain.Record {
	now := t.now().UTC()
	records := make([]healthDomain.Record, 0)
	t.states.Range(func(k, v any) bool {
		key := k.(healthDomain.Key)
		s := v.(*gatewayState)
		s.mu.Lock()
		records = append(records, t.snapshotLocked(key.Channel, key.Gateway, s, now))
		s.mu.Unlock()
		return true
	})

	sort.Slice(records, func(i, j int) bool {
		if records[i].Channel != records[j].Channel {
			return records[i].Channel < records[j].Channel
		}
		return records[i].Gateway < records[j].Gateway
	})
	return records
}

// Restore seeds the tracker from persisted records. Rolling statistics are not
// persisted at minute granularity, so only the circuit state and failure details
// carry over.
func (t *Tracker) Restore(records []healthDomain.Record) {
	now := t.now().UTC()
	for _, r := range records {
		s := t.state(r.Channel, r.Gateway)
		s.mu.Lock()
		s.lastCheckAt = r.LastCheckAt
		s.lastFailureAt = r.LastFailureAt
		s.failureReason = r.FailureReason
		if r.MaxRatePerSec > 0 {
			s.maxRatePerSec = r.MaxRatePerSec
		}
		if r.CircuitOpen && r.LastFailureAt != nil && t.policy.FailureThreshold > 0 {
			s.consecutiveFailures = max(r.ConsecutiveFailures, t.policy.FailureThreshold)
			s.openedAt = *r.LastFailureAt
		}
		s.healthy = t.healthyLocked(s, now)
		s.mu.Unlock()
	}
}
