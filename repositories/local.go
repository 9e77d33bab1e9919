//go:generate go run go.uber.org/mock/mockgen -source=local.go -destination=../mocks/mock_local_store.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"mentorlink/contract"
	"mentorlink/domain"
	"mentorlink/errors"
)

// Buffer size of watch channels. Snapshots are full states, so a consumer
// that skips one only misses an intermediate list, never the final one.
const watchBuffer = 16

// LocalStore is a badger-backed document store with live change
// notification. It implements both contract.ConversationStore and
// contract.ProfileStore and backs local runs and tests; production uses
// FirestoreStore.
//
// Key layout:
//
//	conv:{pairID}                     conversation record
//	msg:{convID}:{ts19}:{uuid}        message record
//	profile:{userID}                  profile record
//	company:{userID}                  company name
//
// The 19-digit zero-padded UnixNano keeps message keys chronologically
// sorted under lexicographic iteration; the uuid suffix disambiguates two
// messages landing on the same nanosecond.
type LocalStore struct {
	db    *badger.DB
	log   *slog.Logger
	index *MessageIndex

	mu           sync.RWMutex
	nextWatchID  int
	convWatchers map[int]*convWatcher
	msgWatchers  map[int]*msgWatcher
}

type convWatcher struct {
	userID string
	ch     chan contract.ConversationSnapshot
}

type msgWatcher struct {
	conversationID string
	ch             chan contract.MessageSnapshot
}

// NewLocalStore wires the store; index may be nil to disable search.
func NewLocalStore(db *badger.DB, log *slog.Logger, index *MessageIndex) *LocalStore {
	return &LocalStore{
		db:           db,
		log:          log,
		index:        index,
		convWatchers: make(map[int]*convWatcher),
		msgWatchers:  make(map[int]*msgWatcher),
	}
}

func convKey(pairID string) []byte {
	return []byte("conv:" + pairID)
}

func msgKey(conversationID string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", conversationID, at.UnixNano(), id))
}

func msgPrefix(conversationID string) []byte {
	return []byte(fmt.Sprintf("msg:%s:", conversationID))
}

// WatchConversations registers a live subscription for userID and delivers
// the current state immediately. The channel is closed once ctx is
// cancelled; the closing happens under the registry write lock so no
// notifier can race a send against it.
func (s *LocalStore) WatchConversations(ctx context.Context, userID string) (<-chan contract.ConversationSnapshot, error) {
	conversations, err := s.conversationsFor(userID)
	if err != nil {
		return nil, err
	}

	w := &convWatcher{userID: userID, ch: make(chan contract.ConversationSnapshot, watchBuffer)}
	s.mu.Lock()
	s.nextWatchID++
	id := s.nextWatchID
	s.convWatchers[id] = w
	s.mu.Unlock()

	w.ch <- contract.ConversationSnapshot{Conversations: conversations}

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.convWatchers, id)
		close(w.ch)
		s.mu.Unlock()
	}()
	return w.ch, nil
}

func (s *LocalStore) WatchMessages(ctx context.Context, conversationID string) (<-chan contract.MessageSnapshot, error) {
	messages, err := s.messagesFor(conversationID)
	if err != nil {
		return nil, err
	}

	w := &msgWatcher{conversationID: conversationID, ch: make(chan contract.MessageSnapshot, watchBuffer)}
	s.mu.Lock()
	s.nextWatchID++
	id := s.nextWatchID
	s.msgWatchers[id] = w
	s.mu.Unlock()

	w.ch <- contract.MessageSnapshot{Messages: messages}

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.msgWatchers, id)
		close(w.ch)
		s.mu.Unlock()
	}()
	return w.ch, nil
}

func (s *LocalStore) FindByParticipants(_ context.Context, userA, userB string) (*domain.Conversation, error) {
	var conv *domain.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(convKey(domain.PairID(userA, userB)))
		if goerrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			decoded, err := decodeConversation(value)
			if err != nil {
				return err
			}
			conv = &decoded
			return nil
		})
	})
	return conv, err
}

// CreateConversation is idempotent: the record key is the canonical pair id,
// so a racing second creation finds the first one and returns its id.
func (s *LocalStore) CreateConversation(_ context.Context, conv domain.Conversation) (string, error) {
	if len(conv.ParticipantIDs) != 2 || !domain.ValidParticipants(conv.ParticipantIDs[0], conv.ParticipantIDs[1]) {
		return "", errors.ErrInvalidParticipants
	}
	conv.ID = conv.PairID()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		key := convKey(conv.ID)
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if !goerrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		bytes, err := json.Marshal(conv)
		if err != nil {
			return err
		}
		return txn.Set(key, bytes)
	})
	if err != nil {
		return "", err
	}
	s.notifyConversations()
	return conv.ID, nil
}

// CreateMessage writes the message and the parent conversation's summary
// fields plus the counterpart unread increments in a single transaction,
// then notifies watchers. Indexing for search is best-effort.
func (s *LocalStore) CreateMessage(_ context.Context, conversationID string, msg domain.Message) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	key := msgKey(conversationID, msg.CreatedAt, msg.ID)

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(convKey(conversationID))
		if goerrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrConversationNotFound
		}
		if err != nil {
			return err
		}
		var conv domain.Conversation
		if err := item.Value(func(value []byte) error {
			conv, err = decodeConversation(value)
			return err
		}); err != nil {
			return err
		}
		if !conv.HasParticipant(msg.SenderID) {
			return errors.ErrInvalidParticipants
		}

		conv.LastMessage = msg.Summary()
		conv.LastMessageAt = msg.CreatedAt
		conv.LastSenderID = msg.SenderID
		for _, participant := range conv.ParticipantIDs {
			if participant != msg.SenderID {
				conv.UnreadCounts[participant]++
			}
		}

		msgBytes, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := txn.Set(key, msgBytes); err != nil {
			return err
		}
		convBytes, err := json.Marshal(conv)
		if err != nil {
			return err
		}
		return txn.Set(convKey(conversationID), convBytes)
	})
	if err != nil {
		return "", err
	}

	if s.index != nil && msg.Text != "" {
		if err := s.index.Index(string(key), conversationID, msg); err != nil {
			s.log.Warn("Message indexing failed", "conversation", conversationID, "error", err)
		}
	}
	s.notifyConversations()
	s.notifyMessages(conversationID)
	return msg.ID, nil
}

// MarkRead zeroes userID's unread counter and adds userID to readBy on
// every message not yet seen. Callers treat this as best-effort.
func (s *LocalStore) MarkRead(_ context.Context, conversationID, userID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(convKey(conversationID))
		if goerrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrConversationNotFound
		}
		if err != nil {
			return err
		}
		var conv domain.Conversation
		if err := item.Value(func(value []byte) error {
			conv, err = decodeConversation(value)
			return err
		}); err != nil {
			return err
		}
		conv.UnreadCounts[userID] = 0
		convBytes, err := json.Marshal(conv)
		if err != nil {
			return err
		}
		if err := txn.Set(convKey(conversationID), convBytes); err != nil {
			return err
		}

		// Collect first, write after the iterator is closed.
		type pending struct {
			key   []byte
			value []byte
		}
		var updates []pending
		prefix := msgPrefix(conversationID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg domain.Message
			keyCopy := it.Item().KeyCopy(nil)
			if err := it.Item().Value(func(value []byte) error {
				decoded, err := decodeMessage(value)
				msg = decoded
				return err
			}); err != nil {
				it.Close()
				return err
			}
			if msg.IsReadBy(userID) {
				continue
			}
			msg.ReadBy = append(msg.ReadBy, userID)
			bytes, err := json.Marshal(msg)
			if err != nil {
				it.Close()
				return err
			}
			updates = append(updates, pending{key: keyCopy, value: bytes})
		}
		it.Close()

		for _, u := range updates {
			if err := txn.Set(u.key, u.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifyConversations()
	s.notifyMessages(conversationID)
	return nil
}

func (s *LocalStore) FetchProfile(_ context.Context, userID string) (domain.Profile, error) {
	var profile domain.Profile
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("profile:" + userID))
		if goerrors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", errors.ErrProfileNotFound, userID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			if err := json.Unmarshal(value, &profile); err != nil {
				return fmt.Errorf("%w: profile %s: %v", errors.ErrDataCorrupted, userID, err)
			}
			return nil
		})
	})
	profile.ID = userID
	return profile, err
}

// FetchCompanyByUser returns ("", nil) when the user has no company record;
// the caller's cache records that as known-empty.
func (s *LocalStore) FetchCompanyByUser(_ context.Context, userID string) (string, error) {
	var name string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("company:" + userID))
		if goerrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			name = string(value)
			return nil
		})
	})
	return name, err
}

// SeedProfile and SeedCompany populate the enrichment records. The mobile
// clients write these through their profile flows; here they exist for
// local runs and tests.
func (s *LocalStore) SeedProfile(profile domain.Profile) error {
	bytes, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("profile:"+profile.ID), bytes)
	})
}

func (s *LocalStore) SeedCompany(userID, name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("company:"+userID), []byte(name))
	})
}

// RecentMessages pages backwards through a conversation's history, newest
// first. A nil cursor starts from the latest message; the returned cursor
// resumes right before the last returned one, nil when exhausted.
func (s *LocalStore) RecentMessages(_ context.Context, conversationID string, cursor *string, limit int) ([]domain.Message, *string, error) {
	var messages []domain.Message
	var lastKey string
	prefix := msgPrefix(conversationID)
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Past any 19-digit timestamp, then walk backwards.
			seekKey = append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		default:
			seekKey = append(append([]byte{}, prefix...), []byte(*cursor)...)
		}
		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				return nil
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			if err := item.Value(func(value []byte) error {
				msg, err := decodeMessage(value)
				if err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			}); err != nil {
				return err
			}
		}
		lastKey = ""
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if lastKey == "" {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

// SearchMessages resolves a full-text query against the bluge index and
// loads the matching records, newest first.
func (s *LocalStore) SearchMessages(ctx context.Context, conversationID, query string, limit int) ([]domain.Message, error) {
	if s.index == nil {
		return nil, nil
	}
	keys, err := s.index.Search(ctx, conversationID, query, limit)
	if err != nil {
		return nil, err
	}
	var messages []domain.Message
	err = s.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			item, err := txn.Get([]byte(key))
			if goerrors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := item.Value(func(value []byte) error {
				msg, err := decodeMessage(value)
				if err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.After(messages[j].CreatedAt)
	})
	return messages, nil
}

// conversationsFor mirrors the production store ordering: lastMessageAt
// descending, creation time as tiebreaker for fresh conversations.
func (s *LocalStore) conversationsFor(userID string) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte("conv:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(func(value []byte) error {
				conv, err := decodeConversation(value)
				if err != nil {
					return err
				}
				if conv.HasParticipant(userID) {
					conversations = append(conversations, conv)
				}
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(conversations, func(i, j int) bool {
		if !conversations[i].LastMessageAt.Equal(conversations[j].LastMessageAt) {
			return conversations[i].LastMessageAt.After(conversations[j].LastMessageAt)
		}
		return conversations[i].CreatedAt.After(conversations[j].CreatedAt)
	})
	return conversations, nil
}

func (s *LocalStore) messagesFor(conversationID string) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := msgPrefix(conversationID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		// Keys are chronological, no re-sort needed.
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(func(value []byte) error {
				msg, err := decodeMessage(value)
				if err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return messages, err
}

func (s *LocalStore) notifyConversations() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.convWatchers {
		conversations, err := s.conversationsFor(w.userID)
		snapshot := contract.ConversationSnapshot{Conversations: conversations}
		if err != nil {
			snapshot = contract.ConversationSnapshot{Err: err}
		}
		select {
		case w.ch <- snapshot:
		default:
			s.log.Warn("Conversation watcher lagging, snapshot dropped", "user", w.userID)
		}
	}
}

func (s *LocalStore) notifyMessages(conversationID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.msgWatchers {
		if w.conversationID != conversationID {
			continue
		}
		messages, err := s.messagesFor(conversationID)
		snapshot := contract.MessageSnapshot{Messages: messages}
		if err != nil {
			snapshot = contract.MessageSnapshot{Err: err}
		}
		select {
		case w.ch <- snapshot:
		default:
			s.log.Warn("Message watcher lagging, snapshot dropped", "conversation", conversationID)
		}
	}
}

func decodeConversation(value []byte) (domain.Conversation, error) {
	var conv domain.Conversation
	if err := json.Unmarshal(value, &conv); err != nil {
		return domain.Conversation{}, fmt.Errorf("%w: conversation: %v", errors.ErrDataCorrupted, err)
	}
	if conv.UnreadCounts == nil {
		conv.UnreadCounts = make(map[string]int)
	}
	return conv, nil
}

func decodeMessage(value []byte) (domain.Message, error) {
	var msg domain.Message
	if err := json.Unmarshal(value, &msg); err != nil {
		return domain.Message{}, fmt.Errorf("%w: message: %v", errors.ErrDataCorrupted, err)
	}
	return msg, nil
}

var (
	_ contract.ConversationStore = (*LocalStore)(nil)
	_ contract.ProfileStore      = (*LocalStore)(nil)
)
