// Package domain defines rate limit counters and the admission rule shared by
// every counter store.
package domain

import (
	"fmt"
	"time"
)

// Ceiling is the set of maxima for one limit key. A zero value means unlimited.
type Ceiling struct {
	PerSecond int `yaml:"per_second"`
	PerHour   int `yaml:"per_hour"`
	PerDay    int `yaml:"per_day"`
}

// IsUnlimited reports whether no window is bounded.
func (c Ceiling) IsUnlimited() bool {
	return c.PerSecond <= 0 && c.PerHour <= 0 && c.PerDay <= 0
}

// LimitType classifies what a counter throttles.
type LimitType string

const (
	LimitTypeGateway LimitType = "gateway"
	LimitTypeIPPool  LimitType = "ip_pool"
)

// Key identifies one counter row.
type Key struct {
	Type  LimitType
	Value string
}

// String renders the key as "type:value".
func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Type, k.Value)
}

// GatewayKey builds the counter key for a (channel, gateway) pair.
func GatewayKey(channel, gateway string) Key {
	return Key{Type: LimitTypeGateway, Value: channel + "/" + gateway}
}

// PoolKey builds the counter key for a (channel, gateway, pool) triple.
func PoolKey(channel, gateway, pool string) Key {
	return Key{Type: LimitTypeIPPool, Value: channel + "/" + gateway + "/" + pool}
}

// Counter is the persisted state of one limit key. Version increments on every
// successful write and is the compare-and-swap guard for concurrent admitters.
type Counter struct {
	Key         Key
	SecondStart time.Time
	SecondCount int
	HourCount   int
	HourResetAt time.Time
	DayCount    int
	DayResetAt  time.Time
	Version     int64
}

// Decision is the result of one admission check.
type Decision struct {
	Admitted   bool
	RetryAfter time.Time // zero when admitted
}

// roll lazily resets windows whose boundary has passed. Hour and day windows are
// aligned to UTC wall-clock boundaries.
func (c Counter) roll(now time.Time) Counter {
	now = now.UTC()

	second := now.Truncate(time.Second)
	if !c.SecondStart.Equal(second) {
		c.SecondStart = second
		c.SecondCount = 0
	}

	if c.HourResetAt.IsZero() || !now.Before(c.HourResetAt) {
		c.HourCount = 0
		c.HourResetAt = now.Truncate(time.Hour).Add(time.Hour)
	}

	if c.DayResetAt.IsZero() || !now.Before(c.DayResetAt) {
		c.DayCount = 0
		c.DayResetAt = now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	}

	return c
}

// Admit evaluates one admission at now. When every bounded window has capacity the
// returned counter has all windows incremented and Admitted is true. Otherwise the
// returned counter equals the input and RetryAfter is the earliest time at which the
// most restrictive exhausted window regains capacity.
func Admit(current Counter, ceiling Ceiling, now time.Time) (Counter, Decision) {
	next := current.roll(now)

	var retryAfter time.Time
	exceeded := func(at time.Time) {
		if at.After(retryAfter) {
			retryAfter = at
		}
	}

	if ceiling.PerSecond > 0 && next.SecondCount >= ceiling.PerSecond {
		exceeded(next.SecondStart.Add(time.Second))
	}
	if ceiling.PerHour > 0 && next.HourCount >= ceiling.PerHour {
		exceeded(next.HourResetAt)
	}
	if ceiling.PerDay > 0 && next.DayCount >= ceiling.PerDay {
		exceeded(next.DayResetAt)
	}

	if !retryAfter.IsZero() {
		return current, Decision{Admitted: false, RetryAfter: retryAfter}
	}

	next.SecondCount++
	next.HourCount++
	next.DayCount++
	return next, Decision{Admitted: true}
}
