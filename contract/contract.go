//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"

	"mentorlink/domain"
)

// ConversationSnapshot is one full, ordered state of a user's conversation
// list as pushed by the store. Err is set instead of Conversations when the
// listener fails; the channel is closed right after.
type ConversationSnapshot struct {
	Conversations []domain.Conversation
	Err           error
}

// MessageSnapshot is one full state of a conversation's message list,
// ordered by creation time ascending.
type MessageSnapshot struct {
	Messages []domain.Message
	Err      error
}

// ConversationStore is the document store collaborator. Watch channels are
// closed when the given context is cancelled or after an error snapshot.
//
// CreateMessage must update the parent conversation's summary fields and
// increment the counterpart's unread counter as one atomic write.
type ConversationStore interface {
	WatchConversations(ctx context.Context, userID string) (<-chan ConversationSnapshot, error)
	FindByParticipants(ctx context.Context, userA, userB string) (*domain.Conversation, error)
	CreateConversation(ctx context.Context, conv domain.Conversation) (string, error)
	WatchMessages(ctx context.Context, conversationID string) (<-chan MessageSnapshot, error)
	CreateMessage(ctx context.Context, conversationID string, msg domain.Message) (string, error)
	MarkRead(ctx context.Context, conversationID, userID string) error
}

// ProfileStore resolves display profiles and company names for enrichment.
// FetchCompanyByUser returns ("", nil) when the user has no company; the
// cache records that as known-empty so it is never refetched.
type ProfileStore interface {
	FetchProfile(ctx context.Context, userID string) (domain.Profile, error)
	FetchCompanyByUser(ctx context.Context, userID string) (string, error)
}

// BlobStorage uploads attachment bytes and returns a download URL.
type BlobStorage interface {
	Upload(ctx context.Context, data []byte, path string) (string, error)
}
