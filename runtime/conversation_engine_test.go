package runtime_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentorlink/contract"
	"mentorlink/domain"
	"mentorlink/errors"
	"mentorlink/runtime"
)

func conversationWith(id, userA, userB string, unread map[string]int) domain.Conversation {
	return domain.Conversation{
		ID:             id,
		ParticipantIDs: []string{userA, userB},
		UnreadCounts:   unread,
	}
}

func Test_Engine_Enriches_Snapshot_With_Fetched_Profile(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	profiles := newFakeProfiles()
	profiles.profiles["bob"] = domain.Profile{ID: "bob", DisplayName: "Bob", ImageURL: "https://img/bob", Role: "Mentor"}
	profiles.companies["bob"] = "Acme Ventures"
	engine := runtime.NewConversationSyncEngine(slog.Default(), store, profiles, 8)

	updates, err := engine.StartListening(context.Background(), "alice")
	req.NoError(err)
	defer engine.StopListening()

	store.conversationFeed <- contract.ConversationSnapshot{Conversations: []domain.Conversation{
		conversationWith("c1", "alice", "bob", map[string]int{"alice": 3}),
	}}

	update := <-updates
	req.NoError(update.Err)
	req.Len(update.Conversations, 1)
	assert.Equal(t, "Bob", update.Conversations[0].OtherParticipantName)
	assert.Equal(t, "https://img/bob", update.Conversations[0].OtherParticipantImageURL)
	assert.Equal(t, "Acme Ventures", update.Conversations[0].OtherParticipantCompany)
	assert.Equal(t, 3, update.TotalUnread)
}

func Test_Engine_Fetches_Shared_Counterpart_Profile_Only_Once(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	profiles := newFakeProfiles()
	profiles.profiles["bob"] = domain.Profile{ID: "bob", DisplayName: "Bob"}
	engine := runtime.NewConversationSyncEngine(slog.Default(), store, profiles, 8)

	updates, err := engine.StartListening(context.Background(), "alice")
	req.NoError(err)
	defer engine.StopListening()

	// Two conversations referencing the same other user.
	store.conversationFeed <- contract.ConversationSnapshot{Conversations: []domain.Conversation{
		conversationWith("c1", "alice", "bob", nil),
		conversationWith("c2", "bob", "alice", nil),
	}}

	<-updates
	assert.Equal(t, 1, profiles.fetchCount("bob"))

	// A later snapshot finds the cache warm and fetches nothing.
	store.conversationFeed <- contract.ConversationSnapshot{Conversations: []domain.Conversation{
		conversationWith("c1", "alice", "bob", nil),
	}}
	<-updates
	assert.Equal(t, 1, profiles.fetchCount("bob"))
}

func Test_Engine_Company_Falls_Back_To_Role_When_Known_Empty(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	profiles := newFakeProfiles()
	profiles.profiles["bob"] = domain.Profile{ID: "bob", DisplayName: "Bob", Role: "Angel Investor"}
	// No company record: the fetch returns "", recorded as known-empty.
	engine := runtime.NewConversationSyncEngine(slog.Default(), store, profiles, 8)

	updates, err := engine.StartListening(context.Background(), "alice")
	req.NoError(err)
	defer engine.StopListening()

	store.conversationFeed <- contract.ConversationSnapshot{Conversations: []domain.Conversation{
		conversationWith("c1", "alice", "bob", nil),
	}}

	update := <-updates
	assert.Equal(t, "Angel Investor", update.Conversations[0].OtherParticipantCompany)
}

func Test_Engine_Publishes_Rest_Of_List_When_One_Profile_Fetch_Fails(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	profiles := newFakeProfiles()
	profiles.profiles["bob"] = domain.Profile{ID: "bob", DisplayName: "Bob"}
	profiles.profileErr["clara"] = errors.ErrProfileNotFound
	engine := runtime.NewConversationSyncEngine(slog.Default(), store, profiles, 8)

	updates, err := engine.StartListening(context.Background(), "alice")
	req.NoError(err)
	defer engine.StopListening()

	store.conversationFeed <- contract.ConversationSnapshot{Conversations: []domain.Conversation{
		conversationWith("c1", "alice", "bob", nil),
		conversationWith("c2", "alice", "clara", nil),
	}}

	update := <-updates
	req.Len(update.Conversations, 2)
	assert.Equal(t, "Bob", update.Conversations[0].OtherParticipantName)
	assert.Empty(t, update.Conversations[1].OtherParticipantName, "failed enrichment degrades to empty fields")
}

func Test_Engine_Discards_Enrichment_Arriving_After_Stop(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	profiles := newFakeProfiles()
	profiles.profiles["bob"] = domain.Profile{ID: "bob", DisplayName: "Bob"}
	profiles.gate = make(chan struct{})
	profiles.entered = make(chan struct{}, 1)
	engine := runtime.NewConversationSyncEngine(slog.Default(), store, profiles, 8)

	updates, err := engine.StartListening(context.Background(), "alice")
	req.NoError(err)

	store.conversationFeed <- contract.ConversationSnapshot{Conversations: []domain.Conversation{
		conversationWith("c1", "alice", "bob", nil),
	}}
	<-profiles.entered // the fetch is in flight

	engine.StopListening()
	close(profiles.gate) // let the delayed fetch resolve now

	// The only thing left on the channel must be its closure.
	update, ok := <-updates
	assert.False(t, ok, "no update may follow StopListening, got %+v", update)
}

func Test_Engine_Discards_Stale_Enrichment_When_Newer_Snapshot_Arrived(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	profiles := newFakeProfiles()
	profiles.profiles["bob"] = domain.Profile{ID: "bob", DisplayName: "Bob"}
	profiles.gate = make(chan struct{})
	profiles.entered = make(chan struct{}, 1)
	engine := runtime.NewConversationSyncEngine(slog.Default(), store, profiles, 8)

	updates, err := engine.StartListening(context.Background(), "alice")
	req.NoError(err)
	defer engine.StopListening()

	// First snapshot needs a profile fetch and blocks on the gate.
	store.conversationFeed <- contract.ConversationSnapshot{Conversations: []domain.Conversation{
		conversationWith("c1", "alice", "bob", nil),
	}}
	<-profiles.entered

	// Second snapshot has nothing to fetch and publishes immediately.
	store.conversationFeed <- contract.ConversationSnapshot{Conversations: nil}

	update := <-updates
	req.NoError(update.Err)
	assert.Empty(t, update.Conversations)

	close(profiles.gate)

	// The first snapshot's enrichment resolves late and must be dropped.
	select {
	case stale := <-updates:
		t.Fatalf("stale enrichment was published: %+v", stale)
	case <-time.After(100 * time.Millisecond):
	}
}

func Test_Engine_Surfaces_Listener_Error_Once(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	engine := runtime.NewConversationSyncEngine(slog.Default(), store, newFakeProfiles(), 8)

	updates, err := engine.StartListening(context.Background(), "alice")
	req.NoError(err)
	defer engine.StopListening()

	store.conversationFeed <- contract.ConversationSnapshot{Err: errors.ErrStoreUnavailable}

	update := <-updates
	require.ErrorIs(t, update.Err, errors.ErrStoreUnavailable)
}

func Test_Engine_Rejects_Second_StartListening(t *testing.T) {
	req := require.New(t)
	engine := runtime.NewConversationSyncEngine(slog.Default(), newFakeStore(), newFakeProfiles(), 8)

	_, err := engine.StartListening(context.Background(), "alice")
	req.NoError(err)
	defer engine.StopListening()

	_, err = engine.StartListening(context.Background(), "alice")
	req.ErrorIs(err, errors.ErrAlreadyListening)
}

func Test_Engine_TotalUnreadCount_Tracks_Latest_Publication(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	profiles := newFakeProfiles()
	engine := runtime.NewConversationSyncEngine(slog.Default(), store, profiles, 8)

	updates, err := engine.StartListening(context.Background(), "alice")
	req.NoError(err)
	defer engine.StopListening()

	store.conversationFeed <- contract.ConversationSnapshot{Conversations: []domain.Conversation{
		conversationWith("c1", "alice", "bob", map[string]int{"alice": 2}),
		conversationWith("c2", "alice", "clara", map[string]int{"alice": 1, "clara": 9}),
	}}

	update := <-updates
	assert.Equal(t, 3, update.TotalUnread)
	assert.Equal(t, 3, engine.TotalUnreadCount())
}
