package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/courier/internal/config"
	messageDomain "github.com/allisson/courier/internal/message/domain"
)

type fakeHealth map[string]bool

func (f fakeHealth) IsHealthy(_ messageDomain.Channel, gateway string) bool {
	healthy, known := f[gateway]
	return !known || healthy
}

func TestRouter_SelectGateway(t *testing.T) {
	policy := config.DefaultPolicy()

	t.Run("Success_DefaultGateway", func(t *testing.T) {
		router := NewRouter(policy, fakeHealth{})

		route, err := router.SelectGateway(messageDomain.ChannelEmail, &messageDomain.Message{})
		require.NoError(t, err)
		assert.Equal(t, Route{Gateway: "postal", IPPool: "transactional"}, route)
	})

	t.Run("Success_FailoverWhileUnhealthy", func(t *testing.T) {
		health := fakeHealth{"postal": false}
		router := NewRouter(policy, health)

		for i := 0; i < 100; i++ {
			route, err := router.SelectGateway(messageDomain.ChannelEmail, &messageDomain.Message{})
			require.NoError(t, err)
			assert.Equal(t, "ses", route.Gateway)
			assert.True(t, route.Failover)
		}

		health["postal"] = true
		route, err := router.SelectGateway(messageDomain.ChannelEmail, &messageDomain.Message{})
		require.NoError(t, err)
		assert.Equal(t, "postal", route.Gateway)
	})

	t.Run("Success_NoFailoverKeepsDefault", func(t *testing.T) {
		router := NewRouter(policy, fakeHealth{"twilio": false})

		route, err := router.SelectGateway(messageDomain.ChannelSMS, &messageDomain.Message{})
		require.NoError(t, err)
		assert.Equal(t, "twilio", route.Gateway)
		assert.False(t, route.Failover)
	})

	t.Run("Success_PoolOverride", func(t *testing.T) {
		router := NewRouter(policy, nil)
		pool := "emergency"

		route, err := router.SelectGateway(messageDomain.ChannelEmail, &messageDomain.Message{IPPool: &pool})
		require.NoError(t, err)
		assert.Equal(t, "emergency", route.IPPool)
	})

	t.Run("Error_ChannelDisabled", func(t *testing.T) {
		disabled := config.DefaultPolicy()
		disabled.Channels[messageDomain.ChannelPush.Index()].Enabled = false
		router := NewRouter(disabled, nil)

		_, err := router.SelectGateway(messageDomain.ChannelPush, &messageDomain.Message{})
		assert.ErrorIs(t, err, ErrChannelDisabled)
	})
}

func TestBackoff(t *testing.T) {
	tier := config.TierPolicy{BaseBackoff: 2 * time.Second, MaxBackoff: 30 * time.Second}

	t.Run("Success_ExponentialWithEqualJitter", func(t *testing.T) {
		low := &Backoff{jitter: func() float64 { return 0 }}
		high := &Backoff{jitter: func() float64 { return 0.999999 }}

		assert.Equal(t, time.Second, low.Delay(tier, 1))
		assert.Equal(t, 2*time.Second, low.Delay(tier, 2))
		assert.Equal(t, 4*time.Second, low.Delay(tier, 3))
		assert.InDelta(t, float64(8*time.Second), float64(high.Delay(tier, 3)), float64(time.Millisecond))

		// capped at the tier maximum
		assert.Equal(t, 15*time.Second, low.Delay(tier, 10))
		assert.LessOrEqual(t, high.Delay(tier, 10), 30*time.Second)
	})

	t.Run("Success_CappedByDeadline", func(t *testing.T) {
		b := &Backoff{jitter: func() float64 { return 0.5 }}
		now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		deadline := now.Add(3 * time.Second)

		assert.Equal(t, deadline, b.Next(tier, 5, now, deadline))
		assert.True(t, b.Next(tier, 1, now, deadline).Before(deadline))
	})

	t.Run("Success_RandomJitterInRange", func(t *testing.T) {
		b := NewBackoff()
		for i := 0; i < 100; i++ {
			d := b.Delay(tier, 2)
			assert.GreaterOrEqual(t, d, 2*time.Second)
			assert.Less(t, d, 4*time.Second)
		}
	})
}

func TestPlanQuotas(t *testing.T) {
	weights := config.DefaultPolicy().Weights()

	t.Run("Success_WeightedShares", func(t *testing.T) {
		quotas := PlanQuotas(weights, 62)
		assert.Equal(t, [messageDomain.PriorityCount]int{32, 16, 8, 4, 2}, quotas)
	})

	t.Run("Success_EveryTierServed", func(t *testing.T) {
		quotas := PlanQuotas(weights, 10)

		sum := 0
		for _, q := range quotas {
			assert.GreaterOrEqual(t, q, 1)
			sum += q
		}
		assert.Equal(t, 10, sum)
		assert.Greater(t, quotas[0], quotas[4])
	})

	t.Run("Success_TinyBudget", func(t *testing.T) {
		quotas := PlanQuotas(weights, 3)
		assert.Equal(t, [messageDomain.PriorityCount]int{1, 1, 1, 0, 0}, quotas)
	})

	t.Run("Success_ZeroBudget", func(t *testing.T) {
		assert.Equal(t, [messageDomain.PriorityCount]int{}, PlanQuotas(weights, 0))
	})
}
