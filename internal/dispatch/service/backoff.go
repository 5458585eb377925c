package service

import (
	"math/rand/v2"
	"time"

	"github.com/allisson/courier/internal/config"
)

// Backoff computes retry times: exponential growth from the tier's base delay, capped
// at its max delay, with equal jitter, and never past the message deadline.
type Backoff struct {
	jitter func() float64 // in [0, 1)
}

// NewBackoff creates a Backoff with random jitter.
func NewBackoff() *Backoff {
	return &Backoff{jitter: rand.Float64}
}

// Delay returns the wait before the retry that follows the given attempt count.
func (b *Backoff) Delay(tier config.TierPolicy, attempts int) time.Duration {
	base := tier.BaseBackoff
	if base <= 0 {
		base = time.Second
	}
	ceiling := tier.MaxBackoff
	if ceiling < base {
		ceiling = base
	}

	d := base
	for i := 1; i < attempts && d < ceiling; i++ {
		d *= 2
	}
	if d > ceiling {
		d = ceiling
	}

	half := d / 2
	return half + time.Duration(b.jitter()*float64(d-half))
}

// Next returns the next retry time after attempts, capped at deadline.
func (b *Backoff) Next(tier config.TierPolicy, attempts int, now, deadline time.Time) time.Time {
	next := now.Add(b.Delay(tier, attempts))
	if !deadline.IsZero() && next.After(deadline) {
		return deadline
	}
	return next
}
