//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"log/slog"

	"mentorlink/contract"
	"mentorlink/runtime"
)

type IChatService interface {
	StartConversation(ctx context.Context, userA, userB string) (string, error)
	OpenInbox(ctx context.Context, userID string) (*runtime.ConversationSyncEngine, <-chan runtime.ConversationListUpdate, error)
	OpenConversation(ctx context.Context, conversationID, userID string) (*runtime.MessageSyncEngine, <-chan runtime.MessageListUpdate, error)
}

// ChatService is the entry point the screens talk to. It provisions
// conversations and hands out listening engines; each engine owns its own
// subscription and profile cache for the duration of one screen session.
type ChatService struct {
	log        *slog.Logger
	store      contract.ConversationStore
	profiles   contract.ProfileStore
	blobs      contract.BlobStorage
	bufferSize int

	provisioner *ConversationProvisioner
}

func NewChatService(log *slog.Logger, store contract.ConversationStore, profiles contract.ProfileStore, blobs contract.BlobStorage, bufferSize int) *ChatService {
	return &ChatService{
		log:         log,
		store:       store,
		profiles:    profiles,
		blobs:       blobs,
		bufferSize:  bufferSize,
		provisioner: NewConversationProvisioner(log, store),
	}
}

func (s *ChatService) StartConversation(ctx context.Context, userA, userB string) (string, error) {
	return s.provisioner.GetOrCreate(ctx, userA, userB)
}

// OpenInbox starts a conversation-list engine for userID. The caller must
// StopListening when the screen goes away.
func (s *ChatService) OpenInbox(ctx context.Context, userID string) (*runtime.ConversationSyncEngine, <-chan runtime.ConversationListUpdate, error) {
	engine := runtime.NewConversationSyncEngine(s.log, s.store, s.profiles, s.bufferSize)
	updates, err := engine.StartListening(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return engine, updates, nil
}

// OpenConversation starts a message engine for one conversation on behalf
// of userID.
func (s *ChatService) OpenConversation(ctx context.Context, conversationID, userID string) (*runtime.MessageSyncEngine, <-chan runtime.MessageListUpdate, error) {
	engine := runtime.NewMessageSyncEngine(s.log, s.store, s.blobs, userID, s.bufferSize)
	updates, err := engine.StartListening(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	return engine, updates, nil
}

var _ IChatService = (*ChatService)(nil)
