package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_TotalUnread_Sums_Counters_And_Defaults_Missing_Keys_To_Zero(t *testing.T) {
	conversations := []Conversation{
		{UnreadCounts: map[string]int{"alice": 2}},
		{UnreadCounts: map[string]int{"alice": 0}},
		{UnreadCounts: map[string]int{}},
		{UnreadCounts: map[string]int{"bob": 5}},
	}

	assert.Equal(t, 2, TotalUnread(conversations, "alice"))
	assert.Equal(t, 5, TotalUnread(conversations, "bob"))
	assert.Equal(t, 0, TotalUnread(conversations, "clara"))
	assert.Equal(t, 0, TotalUnread(nil, "alice"))
}

func Test_PairID_Is_Order_Independent(t *testing.T) {
	assert.Equal(t, PairID("alice", "bob"), PairID("bob", "alice"))
	assert.Equal(t, "alice|bob", PairID("bob", "alice"))
	assert.NotEqual(t, PairID("alice", "bob"), PairID("alice", "clara"))
}

func Test_OtherParticipant(t *testing.T) {
	conv := NewConversation("alice", "bob")

	assert.Equal(t, "bob", conv.OtherParticipant("alice"))
	assert.Equal(t, "alice", conv.OtherParticipant("bob"))
	assert.Equal(t, "alice", conv.OtherParticipant("stranger"))
}

func Test_NewConversation_Zeroes_Both_Counters(t *testing.T) {
	conv := NewConversation("alice", "bob")

	assert.Equal(t, map[string]int{"alice": 0, "bob": 0}, conv.UnreadCounts)
	assert.Empty(t, conv.LastMessage)
	assert.Empty(t, conv.LastSenderID)
	assert.True(t, conv.LastMessageAt.IsZero())
}

func Test_ValidParticipants(t *testing.T) {
	assert.True(t, ValidParticipants("alice", "bob"))
	assert.False(t, ValidParticipants("alice", "alice"))
	assert.False(t, ValidParticipants("alice", ""))
	assert.False(t, ValidParticipants("", "bob"))
	assert.False(t, ValidParticipants("  ", "bob"))
}
