package runtime_test

import (
	"context"
	"sync"
	"sync/atomic"

	"mentorlink/contract"
	"mentorlink/domain"
)

// fakeStore feeds scripted snapshots to the engines and records writes.
type fakeStore struct {
	conversationFeed chan contract.ConversationSnapshot
	messageFeed      chan contract.MessageSnapshot

	createMessageCalls atomic.Int32
	markReadCalls      atomic.Int32
	createMessageErr   error
	markReadErr        error

	mu       sync.Mutex
	created  []domain.Message
	markedBy []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversationFeed: make(chan contract.ConversationSnapshot, 8),
		messageFeed:      make(chan contract.MessageSnapshot, 8),
	}
}

func (s *fakeStore) WatchConversations(ctx context.Context, _ string) (<-chan contract.ConversationSnapshot, error) {
	out := make(chan contract.ConversationSnapshot, 8)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case snapshot, ok := <-s.conversationFeed:
				if !ok {
					return
				}
				out <- snapshot
			}
		}
	}()
	return out, nil
}

func (s *fakeStore) WatchMessages(ctx context.Context, _ string) (<-chan contract.MessageSnapshot, error) {
	out := make(chan contract.MessageSnapshot, 8)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case snapshot, ok := <-s.messageFeed:
				if !ok {
					return
				}
				out <- snapshot
			}
		}
	}()
	return out, nil
}

func (s *fakeStore) FindByParticipants(_ context.Context, _, _ string) (*domain.Conversation, error) {
	return nil, nil
}

func (s *fakeStore) CreateConversation(_ context.Context, conv domain.Conversation) (string, error) {
	return conv.PairID(), nil
}

func (s *fakeStore) CreateMessage(_ context.Context, _ string, msg domain.Message) (string, error) {
	s.createMessageCalls.Add(1)
	if s.createMessageErr != nil {
		return "", s.createMessageErr
	}
	s.mu.Lock()
	s.created = append(s.created, msg)
	s.mu.Unlock()
	return "m1", nil
}

func (s *fakeStore) MarkRead(_ context.Context, _, userID string) error {
	s.markReadCalls.Add(1)
	if s.markReadErr != nil {
		return s.markReadErr
	}
	s.mu.Lock()
	s.markedBy = append(s.markedBy, userID)
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) lastCreated() domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created[len(s.created)-1]
}

// fakeProfiles serves profiles/companies and counts fetches per user.
// When gate is non-nil, FetchProfile blocks on it after signalling entered.
type fakeProfiles struct {
	mu        sync.Mutex
	profiles  map[string]domain.Profile
	companies map[string]string
	fetches   map[string]int

	gate    chan struct{}
	entered chan struct{}

	profileErr map[string]error
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		profiles:   make(map[string]domain.Profile),
		companies:  make(map[string]string),
		fetches:    make(map[string]int),
		profileErr: make(map[string]error),
	}
}

func (p *fakeProfiles) FetchProfile(_ context.Context, userID string) (domain.Profile, error) {
	p.mu.Lock()
	p.fetches[userID]++
	gate, entered := p.gate, p.entered
	err := p.profileErr[userID]
	profile := p.profiles[userID]
	p.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return domain.Profile{}, err
	}
	return profile, nil
}

func (p *fakeProfiles) FetchCompanyByUser(_ context.Context, userID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.companies[userID], nil
}

func (p *fakeProfiles) fetchCount(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches[userID]
}

// fakeBlob records uploads; a non-nil err makes every upload fail.
type fakeBlob struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (b *fakeBlob) Upload(_ context.Context, _ []byte, path string) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	b.mu.Lock()
	b.paths = append(b.paths, path)
	b.mu.Unlock()
	return "https://blobs.test/" + path, nil
}
