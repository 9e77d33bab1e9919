// Package domain contains core concepts of the messaging system.
// Conversations are two-party threads carrying a denormalized summary
// of their latest message and per-participant unread counters.
package domain

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

// Conversation is a persistent thread between exactly two participants.
//
// The OtherParticipant* fields are a client-side projection filled in from
// the profile cache after a snapshot arrives. They are never persisted.
type Conversation struct {
	ID             string         `json:"id" firestore:"-"`
	ParticipantIDs []string       `json:"participantIds" firestore:"participantIds"`
	LastMessage    string         `json:"lastMessage" firestore:"lastMessage"`
	LastMessageAt  time.Time      `json:"lastMessageAt" firestore:"lastMessageAt"`
	LastSenderID   string         `json:"lastSenderId" firestore:"lastSenderId"`
	UnreadCounts   map[string]int `json:"unreadCounts" firestore:"unreadCounts"`
	CreatedAt      time.Time      `json:"createdAt" firestore:"createdAt"`

	OtherParticipantName     string `json:"-" firestore:"-"`
	OtherParticipantImageURL string `json:"-" firestore:"-"`
	OtherParticipantCompany  string `json:"-" firestore:"-"`
}

// NewConversation builds a fresh conversation with empty summary fields and
// zeroed unread counters for both participants.
func NewConversation(userA, userB string) Conversation {
	return Conversation{
		ParticipantIDs: []string{userA, userB},
		UnreadCounts:   map[string]int{userA: 0, userB: 0},
		CreatedAt:      time.Now().UTC(),
	}
}

// PairID derives the canonical identity of a participant pair.
// Sorting makes the id independent of who initiated the conversation, which
// is what guarantees at most one conversation per pair: both sides of a
// provisioning race resolve to the same document key.
func PairID(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + "|" + userB
}

func (c Conversation) PairID() string {
	if len(c.ParticipantIDs) != 2 {
		return ""
	}
	return PairID(c.ParticipantIDs[0], c.ParticipantIDs[1])
}

func (c Conversation) HasParticipant(userID string) bool {
	return lo.Contains(c.ParticipantIDs, userID)
}

// OtherParticipant returns the participant that isn't userID, or "" when
// userID is not part of the conversation.
func (c Conversation) OtherParticipant(userID string) string {
	for _, id := range c.ParticipantIDs {
		if id != userID {
			return id
		}
	}
	return ""
}

// UnreadFor treats missing counter entries as zero.
func (c Conversation) UnreadFor(userID string) int {
	return c.UnreadCounts[userID]
}

// TotalUnread sums the unread counters of userID across conversations.
// Recomputed on every publish rather than cached.
func TotalUnread(conversations []Conversation, userID string) int {
	return lo.SumBy(conversations, func(c Conversation) int {
		return c.UnreadFor(userID)
	})
}

// ValidParticipants rejects empty or identical identifiers before any store
// round trip.
func ValidParticipants(userA, userB string) bool {
	userA, userB = strings.TrimSpace(userA), strings.TrimSpace(userB)
	return userA != "" && userB != "" && userA != userB
}
