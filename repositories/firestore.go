package repositories

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"mentorlink/contract"
	"mentorlink/domain"
	"mentorlink/errors"
)

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
	usersCollection         = "users"
	companiesCollection     = "companies"
)

// FirestoreStore is the production document store. Conversation documents
// are keyed by the canonical pair id, which makes provisioning races
// collapse onto one document instead of producing duplicates.
type FirestoreStore struct {
	client *firestore.Client
	log    *slog.Logger
}

func NewFirestoreStore(client *firestore.Client, log *slog.Logger) *FirestoreStore {
	return &FirestoreStore{client: client, log: log}
}

func (s *FirestoreStore) conversations() *firestore.CollectionRef {
	return s.client.Collection(conversationsCollection)
}

func (s *FirestoreStore) messages(conversationID string) *firestore.CollectionRef {
	return s.conversations().Doc(conversationID).Collection(messagesCollection)
}

// WatchConversations pumps query snapshots into a channel. The store sorts
// by lastMessageAt descending; consumers must preserve that order. On a
// listener error one Err snapshot is delivered and the channel closes; the
// caller decides whether to resubscribe.
func (s *FirestoreStore) WatchConversations(ctx context.Context, userID string) (<-chan contract.ConversationSnapshot, error) {
	query := s.conversations().
		Where("participantIds", "array-contains", userID).
		OrderBy("lastMessageAt", firestore.Desc)

	snapshots := query.Snapshots(ctx)
	ch := make(chan contract.ConversationSnapshot, watchBuffer)
	go func() {
		defer close(ch)
		defer snapshots.Stop()
		for {
			qs, err := snapshots.Next()
			if err != nil {
				s.deliverConversationErr(ctx, ch, err)
				return
			}
			conversations, err := decodeConversationDocs(qs.Documents)
			if err != nil {
				s.deliverConversationErr(ctx, ch, err)
				return
			}
			select {
			case ch <- contract.ConversationSnapshot{Conversations: conversations}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (s *FirestoreStore) WatchMessages(ctx context.Context, conversationID string) (<-chan contract.MessageSnapshot, error) {
	query := s.messages(conversationID).OrderBy("createdAt", firestore.Asc)

	snapshots := query.Snapshots(ctx)
	ch := make(chan contract.MessageSnapshot, watchBuffer)
	go func() {
		defer close(ch)
		defer snapshots.Stop()
		for {
			qs, err := snapshots.Next()
			if err != nil {
				s.deliverMessageErr(ctx, ch, err)
				return
			}
			messages, err := decodeMessageDocs(qs.Documents)
			if err != nil {
				s.deliverMessageErr(ctx, ch, err)
				return
			}
			select {
			case ch <- contract.MessageSnapshot{Messages: messages}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (s *FirestoreStore) FindByParticipants(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	doc, err := s.conversations().Doc(domain.PairID(userA, userB)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	conv, err := decodeConversationDoc(doc)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateConversation creates the pair document transactionally. When the
// other participant raced us here, the existing document wins and its id is
// returned, so both callers resolve to the same conversation.
func (s *FirestoreStore) CreateConversation(ctx context.Context, conv domain.Conversation) (string, error) {
	if len(conv.ParticipantIDs) != 2 || !domain.ValidParticipants(conv.ParticipantIDs[0], conv.ParticipantIDs[1]) {
		return "", errors.ErrInvalidParticipants
	}
	pairID := conv.PairID()
	ref := s.conversations().Doc(pairID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(ref)
		if err == nil {
			return nil
		}
		if status.Code(err) != codes.NotFound {
			return err
		}
		return tx.Create(ref, conv)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return pairID, nil
}

// CreateMessage writes the message and the parent summary update in one
// transaction. The unread increments target every participant except the
// sender, mirroring what the mobile clients expect to read back.
func (s *FirestoreStore) CreateMessage(ctx context.Context, conversationID string, msg domain.Message) (string, error) {
	convRef := s.conversations().Doc(conversationID)
	msgRef := s.messages(conversationID).NewDoc()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(convRef)
		if status.Code(err) == codes.NotFound {
			return errors.ErrConversationNotFound
		}
		if err != nil {
			return err
		}
		conv, err := decodeConversationDoc(snap)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(msg.SenderID) {
			return errors.ErrInvalidParticipants
		}

		updates := []firestore.Update{
			{Path: "lastMessage", Value: msg.Summary()},
			{Path: "lastMessageAt", Value: msg.CreatedAt},
			{Path: "lastSenderId", Value: msg.SenderID},
		}
		for _, participant := range conv.ParticipantIDs {
			if participant != msg.SenderID {
				updates = append(updates, firestore.Update{
					FieldPath: firestore.FieldPath{"unreadCounts", participant},
					Value:     firestore.Increment(1),
				})
			}
		}
		if err := tx.Create(msgRef, msg); err != nil {
			return err
		}
		return tx.Update(convRef, updates)
	})
	if err != nil {
		if goerrors.Is(err, errors.ErrConversationNotFound) || goerrors.Is(err, errors.ErrInvalidParticipants) || goerrors.Is(err, errors.ErrDataCorrupted) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return msgRef.ID, nil
}

// MarkRead resets the user's unread counter, then stamps readBy on the
// counterpart's unseen messages. Firestore cannot query "array does not
// contain", so the readBy filter happens client-side before a BulkWriter
// pass. Best-effort by contract.
func (s *FirestoreStore) MarkRead(ctx context.Context, conversationID, userID string) error {
	convRef := s.conversations().Doc(conversationID)
	_, err := convRef.Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"unreadCounts", userID}, Value: 0},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	docs := s.messages(conversationID).Where("senderId", "!=", userID).Documents(ctx)
	defer docs.Stop()
	writer := s.client.BulkWriter(ctx)
	for {
		doc, err := docs.Next()
		if goerrors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
		}
		msg, err := decodeMessageDoc(doc)
		if err != nil {
			return err
		}
		if msg.IsReadBy(userID) {
			continue
		}
		if _, err := writer.Update(doc.Ref, []firestore.Update{
			{Path: "readBy", Value: firestore.ArrayUnion(userID)},
		}); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
		}
	}
	writer.End()
	return nil
}

func (s *FirestoreStore) FetchProfile(ctx context.Context, userID string) (domain.Profile, error) {
	doc, err := s.client.Collection(usersCollection).Doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return domain.Profile{}, fmt.Errorf("%w: %s", errors.ErrProfileNotFound, userID)
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	var profile domain.Profile
	if err := doc.DataTo(&profile); err != nil {
		return domain.Profile{}, fmt.Errorf("%w: profile %s: %v", errors.ErrDataCorrupted, userID, err)
	}
	profile.ID = doc.Ref.ID
	return profile, nil
}

func (s *FirestoreStore) FetchCompanyByUser(ctx context.Context, userID string) (string, error) {
	docs := s.client.Collection(companiesCollection).
		Where("userId", "==", userID).
		Limit(1).
		Documents(ctx)
	defer docs.Stop()

	doc, err := docs.Next()
	if goerrors.Is(err, iterator.Done) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	var company struct {
		Name string `firestore:"name"`
	}
	if err := doc.DataTo(&company); err != nil {
		return "", fmt.Errorf("%w: company of %s: %v", errors.ErrDataCorrupted, userID, err)
	}
	return company.Name, nil
}

func (s *FirestoreStore) deliverConversationErr(ctx context.Context, ch chan<- contract.ConversationSnapshot, err error) {
	if ctx.Err() != nil || status.Code(err) == codes.Canceled {
		return
	}
	if !goerrors.Is(err, errors.ErrDataCorrupted) {
		err = fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	select {
	case ch <- contract.ConversationSnapshot{Err: err}:
	case <-ctx.Done():
	}
}

func (s *FirestoreStore) deliverMessageErr(ctx context.Context, ch chan<- contract.MessageSnapshot, err error) {
	if ctx.Err() != nil || status.Code(err) == codes.Canceled {
		return
	}
	if !goerrors.Is(err, errors.ErrDataCorrupted) {
		err = fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	select {
	case ch <- contract.MessageSnapshot{Err: err}:
	case <-ctx.Done():
	}
}

func decodeConversationDocs(docs *firestore.DocumentIterator) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	for {
		doc, err := docs.Next()
		if goerrors.Is(err, iterator.Done) {
			return conversations, nil
		}
		if err != nil {
			return nil, err
		}
		conv, err := decodeConversationDoc(doc)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
}

func decodeConversationDoc(doc *firestore.DocumentSnapshot) (domain.Conversation, error) {
	var conv domain.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return domain.Conversation{}, fmt.Errorf("%w: conversation %s: %v", errors.ErrDataCorrupted, doc.Ref.ID, err)
	}
	conv.ID = doc.Ref.ID
	if conv.UnreadCounts == nil {
		conv.UnreadCounts = make(map[string]int)
	}
	return conv, nil
}

func decodeMessageDocs(docs *firestore.DocumentIterator) ([]domain.Message, error) {
	var messages []domain.Message
	for {
		doc, err := docs.Next()
		if goerrors.Is(err, iterator.Done) {
			return messages, nil
		}
		if err != nil {
			return nil, err
		}
		msg, err := decodeMessageDoc(doc)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
}

func decodeMessageDoc(doc *firestore.DocumentSnapshot) (domain.Message, error) {
	var msg domain.Message
	if err := doc.DataTo(&msg); err != nil {
		return domain.Message{}, fmt.Errorf("%w: message %s: %v", errors.ErrDataCorrupted, doc.Ref.ID, err)
	}
	msg.ID = doc.Ref.ID
	return msg, nil
}

var (
	_ contract.ConversationStore = (*FirestoreStore)(nil)
	_ contract.ProfileStore      = (*FirestoreStore)(nil)
)
