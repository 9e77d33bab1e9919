package services

import (
	"context"
	"fmt"
	"log/slog"

	"mentorlink/contract"
	"mentorlink/domain"
	"mentorlink/errors"
)

// ConversationProvisioner resolves "start a conversation with user X" into
// an existing or freshly created conversation id. Uniqueness per pair comes
// from the canonical pair id the stores key conversations by, so a
// provisioning race collapses onto one record instead of duplicating it.
type ConversationProvisioner struct {
	log   *slog.Logger
	store contract.ConversationStore
}

func NewConversationProvisioner(log *slog.Logger, store contract.ConversationStore) *ConversationProvisioner {
	return &ConversationProvisioner{log: log, store: store}
}

// GetOrCreate returns the id of the pair's conversation, creating it with
// empty summary fields and zeroed unread counters on first contact. The
// found path performs no writes.
func (p *ConversationProvisioner) GetOrCreate(ctx context.Context, userA, userB string) (string, error) {
	cmd := domain.ProvisionCommand{UserA: userA, UserB: userB}
	if err := cmd.Validate(); err != nil {
		return "", err
	}

	existing, err := p.store.FindByParticipants(ctx, userA, userB)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	if existing != nil {
		return existing.ID, nil
	}

	id, err := p.store.CreateConversation(ctx, domain.NewConversation(userA, userB))
	if err != nil {
		return "", err
	}
	p.log.Info("Conversation provisioned", "id", id)
	return id, nil
}
