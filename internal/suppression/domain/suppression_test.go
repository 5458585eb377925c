package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	messageDomain "github.com/allisson/courier/internal/message/domain"
)

func TestEntry_IsActive(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, (&Entry{}).IsActive(now))
	assert.True(t, (&Entry{ExpiresAt: &future}).IsActive(now))
	assert.False(t, (&Entry{ExpiresAt: &past}).IsActive(now))
	assert.False(t, (&Entry{ExpiresAt: &now}).IsActive(now))
}

func TestEntry_Matches(t *testing.T) {
	community := int64(42)
	other := int64(7)

	global := &Entry{Channel: messageDomain.ChannelEmail}
	assert.True(t, global.Matches(messageDomain.ChannelEmail, nil))
	assert.True(t, global.Matches(messageDomain.ChannelEmail, &community))
	assert.False(t, global.Matches(messageDomain.ChannelSMS, nil))

	all := &Entry{Channel: ChannelAll}
	assert.True(t, all.Matches(messageDomain.ChannelPush, nil))

	scoped := &Entry{Channel: messageDomain.ChannelSMS, CommunityID: &community}
	assert.True(t, scoped.Matches(messageDomain.ChannelSMS, &community))
	assert.False(t, scoped.Matches(messageDomain.ChannelSMS, &other))
	assert.False(t, scoped.Matches(messageDomain.ChannelSMS, nil))
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "ana@example.com", NormalizeAddress(messageDomain.ChannelEmail, "  Ana@Example.COM "))
	assert.Equal(t, "+15551234567", NormalizeAddress(messageDomain.ChannelSMS, " +15551234567"))
	assert.Equal(t, "ana@example.com", NormalizeAddress(ChannelAll, "ANA@example.com"))
	assert.Equal(t, "TokenABC", NormalizeAddress(messageDomain.ChannelPush, "TokenABC"))
}

func TestScope(t *testing.T) {
	assert.Equal(t, int64(0), ScopeID(nil))
	c := int64(9)
	assert.Equal(t, int64(9), ScopeID(&c))
	assert.Nil(t, CommunityFromScope(0))
	assert.Equal(t, int64(9), *CommunityFromScope(9))
}

func TestReason_Valid(t *testing.T) {
	assert.True(t, ReasonLegal.Valid())
	assert.False(t, Reason("bored").Valid())
	assert.True(t, ValidChannel(ChannelAll))
	assert.False(t, ValidChannel(messageDomain.Channel("fax")))
}
