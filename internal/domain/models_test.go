package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0, Percentage(0, 0))
	assert.Equal(t, 0, Percentage(5, 0))
	assert.Equal(t, 33, Percentage(1, 3))
	assert.Equal(t, 66, Percentage(2, 3))
	assert.Equal(t, 100, Percentage(3, 3))
}

func TestMarkedIDs(t *testing.T) {
	assert.Equal(t, int64(-1000000000123), ChannelMarkedID(123))

	kind, raw := SplitMarkedID(-1000000000123)
	assert.Equal(t, ChatKindChannel, kind)
	assert.Equal(t, int64(123), raw)

	kind, raw = SplitMarkedID(-456)
	assert.Equal(t, ChatKindBasic, kind)
	assert.Equal(t, int64(456), raw)

	kind, raw = SplitMarkedID(789)
	assert.Equal(t, ChatKindUser, kind)
	assert.Equal(t, int64(789), raw)
}

func TestNormalizeHandle(t *testing.T) {
	assert.Equal(t, "@alice", NormalizeHandle("alice"))
	assert.Equal(t, "@bob", NormalizeHandle("@bob"))
	assert.Equal(t, "", NormalizeHandle(""))
}

func TestChatHandleLabel(t *testing.T) {
	var missing *ChatHandle
	assert.Equal(t, "Group 42", missing.Label(42))
	assert.Equal(t, "Group 42", (&ChatHandle{}).Label(42))
	assert.Equal(t, "Dev chat", (&ChatHandle{Title: "Dev chat"}).Label(42))
}

func TestSenderIsRegularUser(t *testing.T) {
	var none *Sender
	assert.False(t, none.IsRegularUser())
	assert.False(t, (&Sender{Kind: SenderChannel}).IsRegularUser())
	assert.False(t, (&Sender{Kind: SenderUser, Bot: true}).IsRegularUser())
	assert.True(t, (&Sender{Kind: SenderUser}).IsRegularUser())
}
