package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"mentorlink/contract"
	"mentorlink/domain"
	"mentorlink/errors"
)

// MessageListUpdate is one publication of a conversation's full message
// list, ordered by creation time ascending as delivered by the store.
type MessageListUpdate struct {
	Messages []domain.Message
	Err      error
}

// MessageSyncEngine streams a single conversation's messages and drives
// read-state updates. Each published snapshot triggers a fire-and-forget
// markRead for the current user; read-state is best-effort and its failures
// are logged, never surfaced.
type MessageSyncEngine struct {
	log        *slog.Logger
	store      contract.ConversationStore
	blobs      contract.BlobStorage
	userID     string
	bufferSize int

	mu             sync.Mutex
	listening      bool
	cancel         context.CancelFunc
	updates        chan MessageListUpdate
	conversationID string
}

func NewMessageSyncEngine(log *slog.Logger, store contract.ConversationStore, blobs contract.BlobStorage, userID string, bufferSize int) *MessageSyncEngine {
	return &MessageSyncEngine{
		log:        log,
		store:      store,
		blobs:      blobs,
		userID:     userID,
		bufferSize: bufferSize,
	}
}

// StartListening subscribes to the conversation's message stream. Exactly
// one subscription per engine instance; a second call fails until
// StopListening ran.
func (e *MessageSyncEngine) StartListening(ctx context.Context, conversationID string) (<-chan MessageListUpdate, error) {
	e.mu.Lock()
	if e.listening {
		e.mu.Unlock()
		return nil, errors.ErrAlreadyListening
	}
	watchCtx, cancel := context.WithCancel(ctx)
	snapshots, err := e.store.WatchMessages(watchCtx, conversationID)
	if err != nil {
		cancel()
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	e.listening = true
	e.cancel = cancel
	e.conversationID = conversationID
	e.updates = make(chan MessageListUpdate, e.bufferSize)
	updates := e.updates
	e.mu.Unlock()

	go e.consume(watchCtx, conversationID, snapshots)
	return updates, nil
}

// StopListening synchronously releases the subscription. A dangling
// listener still delivering into a torn-down consumer is the one failure
// mode this engine must never allow, so the flag flips under the publish
// mutex before the watch context is cancelled.
func (e *MessageSyncEngine) StopListening() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.listening {
		return
	}
	e.listening = false
	e.cancel()
	close(e.updates)
	e.conversationID = ""
}

// SendMessage validates, stages the attachment upload, then writes the
// message record. The store updates the parent conversation's summary and
// unread counters as part of that write. An upload failure aborts before
// any message exists; a write failure after a successful upload leaves the
// blob orphaned, which is accepted and logged.
func (e *MessageSyncEngine) SendMessage(ctx context.Context, text string, attachment *domain.Attachment) (string, error) {
	e.mu.Lock()
	conversationID := e.conversationID
	e.mu.Unlock()
	if conversationID == "" {
		return "", errors.ErrNotListening
	}

	cmd := domain.SendMessageCommand{
		ConversationID: conversationID,
		SenderID:       e.userID,
		Text:           strings.TrimSpace(text),
		Attachment:     attachment,
	}
	if err := cmd.Validate(); err != nil {
		return "", err
	}

	msg := domain.Message{
		SenderID:  e.userID,
		Text:      cmd.Text,
		CreatedAt: time.Now().UTC(),
		ReadBy:    []string{e.userID},
	}
	if attachment != nil {
		url, kind, err := e.uploadAttachment(ctx, conversationID, attachment)
		if err != nil {
			return "", fmt.Errorf("%w: %v", errors.ErrAttachmentUpload, err)
		}
		if strings.HasPrefix(kind, "image/") {
			msg.ImageURL = url
		} else {
			msg.DocumentURL = url
			msg.DocumentName = attachment.Filename
		}
	}

	id, err := e.store.CreateMessage(ctx, conversationID, msg)
	if err != nil {
		if msg.HasAttachment() {
			e.log.Warn("Message write failed after upload, attachment orphaned",
				"conversation", conversationID, "error", err)
		}
		return "", fmt.Errorf("%w: %v", errors.ErrSendFailed, err)
	}
	return id, nil
}

func (e *MessageSyncEngine) uploadAttachment(ctx context.Context, conversationID string, attachment *domain.Attachment) (string, string, error) {
	kind := mimetype.Detect(attachment.Data)
	path := fmt.Sprintf("attachments/%s/%s%s", conversationID, uuid.NewString(), kind.Extension())
	url, err := e.blobs.Upload(ctx, attachment.Data, path)
	return url, kind.String(), err
}

func (e *MessageSyncEngine) consume(ctx context.Context, conversationID string, snapshots <-chan contract.MessageSnapshot) {
	for snapshot := range snapshots {
		if snapshot.Err != nil {
			e.publish(MessageListUpdate{Err: snapshot.Err})
			return
		}
		e.publish(MessageListUpdate{Messages: snapshot.Messages})
		go e.markRead(ctx, conversationID)
	}
}

func (e *MessageSyncEngine) markRead(ctx context.Context, conversationID string) {
	if err := e.store.MarkRead(ctx, conversationID, e.userID); err != nil {
		if ctx.Err() != nil {
			return
		}
		e.log.Error("Mark read failed", "conversation", conversationID, "error", err)
	}
}

func (e *MessageSyncEngine) publish(update MessageListUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.listening {
		e.log.Debug("Engine stopped, update discarded")
		return
	}
	select {
	case e.updates <- update:
	default:
		e.log.Warn("Update channel full, dropping message update", "conversation", e.conversationID)
	}
}
