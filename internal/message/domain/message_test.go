package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriority_Rank(t *testing.T) {
	for i, p := range Priorities {
		assert.Equal(t, i, p.Rank())
		assert.True(t, p.Valid())
	}
	assert.Equal(t, -1, Priority("P9").Rank())
	assert.False(t, Priority("").Valid())
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority(" p1 ")
	require.NoError(t, err)
	assert.Equal(t, PriorityP1, p)

	_, err = ParsePriority("urgent")
	assert.Error(t, err)
}

func TestParseChannel(t *testing.T) {
	c, err := ParseChannel("SMS")
	require.NoError(t, err)
	assert.Equal(t, ChannelSMS, c)
	assert.Equal(t, 1, c.Index())

	_, err = ParseChannel("voice")
	assert.Error(t, err)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusPending, StatusLocked, true},
		{StatusPending, StatusCancelled, true},
		{StatusRetryScheduled, StatusLocked, true},
		{StatusLocked, StatusSending, true},
		{StatusLocked, StatusExpired, true},
		{StatusLocked, StatusFailed, true},
		{StatusSending, StatusSent, true},
		{StatusSending, StatusRetryScheduled, true},
		{StatusLocked, StatusCancelled, false},
		{StatusSending, StatusCancelled, false},
		{StatusSent, StatusPending, false},
		{StatusFailed, StatusLocked, false},
		{StatusExpired, StatusSent, false},
		{StatusCancelled, StatusLocked, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStatus_Predicates(t *testing.T) {
	assert.True(t, StatusSent.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())
	assert.False(t, StatusRetryScheduled.IsTerminal())
	assert.True(t, StatusRetryScheduled.IsCancellable())
	assert.False(t, StatusLocked.IsCancellable())
	assert.True(t, StatusPending.IsClaimable())
	assert.False(t, StatusSending.IsClaimable())
}

func TestMessage_IsExpired(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("AnchoredOnCreatedAt", func(t *testing.T) {
		m := &Message{CreatedAt: created, ScheduledFor: created}
		assert.False(t, m.IsExpired(5*time.Minute, created.Add(5*time.Minute)))
		assert.True(t, m.IsExpired(5*time.Minute, created.Add(5*time.Minute+time.Second)))
	})

	t.Run("AnchoredOnFutureSchedule", func(t *testing.T) {
		m := &Message{CreatedAt: created, ScheduledFor: created.Add(24 * time.Hour)}
		assert.False(t, m.IsExpired(time.Hour, created.Add(2*time.Hour)))
		assert.True(t, m.IsExpired(time.Hour, created.Add(26*time.Hour)))
	})

	t.Run("ZeroMaxAgeNeverExpires", func(t *testing.T) {
		m := &Message{CreatedAt: created, ScheduledFor: created}
		assert.False(t, m.IsExpired(0, created.Add(1000*time.Hour)))
	})
}

func TestMessage_Apply(t *testing.T) {
	token := uuid.Must(uuid.NewV7())
	worker := "worker-1"
	lockedAt := time.Now().UTC()
	gateway := "postal"
	externalID := "ext-1"
	now := time.Now().UTC()

	m := &Message{Status: StatusSending, LockedBy: &worker, LockToken: &token, LockedAt: &lockedAt}
	require.True(t, m.HoldsLock(token))

	m.Apply(Completion{
		Status:     StatusSent,
		Gateway:    &gateway,
		ExternalID: &externalID,
		Attempts:   1,
		SentAt:     &now,
		At:         now,
	})

	assert.Equal(t, StatusSent, m.Status)
	assert.Equal(t, "postal", *m.Gateway)
	assert.Equal(t, 1, m.Attempts)
	assert.Nil(t, m.LockToken)
	assert.Nil(t, m.LockedBy)
	assert.False(t, m.HoldsLock(token))
}

func TestMergeVariables(t *testing.T) {
	shared := map[string]any{"community": "Springfield", "greeting": "Hi"}
	own := map[string]any{"greeting": "Hello", "name": "Ana"}

	merged := MergeVariables(shared, own)
	assert.Equal(t, "Hello", merged["greeting"])
	assert.Equal(t, "Springfield", merged["community"])
	assert.Equal(t, "Ana", merged["name"])
	assert.Equal(t, "Hi", shared["greeting"])
	assert.Nil(t, MergeVariables(nil, nil))
}

func TestNewQueueStats(t *testing.T) {
	stats := NewQueueStats([]QueueCount{
		{Priority: PriorityP0, Status: StatusSent, Count: 7},
		{Priority: PriorityP0, Status: StatusFailed, Count: 1},
		{Priority: PriorityP2, Status: StatusPending, Count: 0},
		{Priority: PriorityP3, Status: StatusPending, Count: 5},
	})

	assert.Equal(t, QueueStats{
		PriorityP0: {StatusSent: 7, StatusFailed: 1},
		PriorityP3: {StatusPending: 5},
	}, stats)
	assert.Equal(t, int64(13), stats.Total())
	assert.Zero(t, NewQueueStats(nil).Total())
}
