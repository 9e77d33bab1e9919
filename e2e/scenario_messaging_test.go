package e2e

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"mentorlink/domain"
	"mentorlink/repositories"
	"mentorlink/services"
)

type noopBlob struct{}

func (noopBlob) Upload(_ context.Context, _ []byte, path string) (string, error) {
	return "blob://" + path, nil
}

func Test_Scenario_Provision_Send_And_Sync(t *testing.T) {
	req := require.New(t)
	cfg, err := LoadConfig()
	req.NoError(err)
	if cfg.FirestoreProject == "" {
		t.Skip("E2E_FIRESTORE_PROJECT not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := firestore.NewClient(ctx, cfg.FirestoreProject)
	req.NoError(err)
	defer func() { _ = client.Close() }()

	log := slog.Default()
	store := repositories.NewFirestoreStore(client, log)
	service := services.NewChatService(log, store, store, noopBlob{}, 16)

	// Provisioning is idempotent for the same pair.
	conversationID, err := service.StartConversation(ctx, cfg.UserA, cfg.UserB)
	req.NoError(err)
	again, err := service.StartConversation(ctx, cfg.UserB, cfg.UserA)
	req.NoError(err)
	req.Equal(conversationID, again)

	sender, _, err := service.OpenConversation(ctx, conversationID, cfg.UserA)
	req.NoError(err)
	defer sender.StopListening()

	receiver, updates, err := service.OpenConversation(ctx, conversationID, cfg.UserB)
	req.NoError(err)
	defer receiver.StopListening()

	text := "hello from e2e " + time.Now().Format(time.RFC3339Nano)
	_, err = sender.SendMessage(ctx, text, nil)
	req.NoError(err)

	// The receiver's stream must eventually deliver the new message.
	deadline := time.After(20 * time.Second)
	for {
		select {
		case update, ok := <-updates:
			req.True(ok, "update stream closed before the message arrived")
			req.NoError(update.Err)
			if lo.ContainsBy(update.Messages, func(m domain.Message) bool {
				return m.Text == text && m.SenderID == cfg.UserA
			}) {
				return
			}
		case <-deadline:
			t.Fatal("message never arrived on the receiver stream")
		}
	}
}
