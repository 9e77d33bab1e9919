// Package runtime holds the synchronization engines: the state machines
// that turn raw store snapshots into enriched, ordered view state.
// It contains no persistence and no domain rules of its own.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"

	"mentorlink/contract"
	"mentorlink/domain"
	"mentorlink/errors"
	"mentorlink/projection"
)

// ConversationListUpdate is one atomic publication of the enriched
// conversation list. Err is set instead of the list when the listener
// failed; no further updates follow an error.
type ConversationListUpdate struct {
	Conversations []domain.Conversation
	TotalUnread   int
	Err           error
}

// ConversationSyncEngine subscribes to a user's conversation stream,
// enriches each snapshot with cached or freshly fetched counterpart
// profiles, and publishes consolidated updates.
//
// Publications are monotonic with respect to snapshot arrival: every
// snapshot takes the next generation number and an enrichment batch is
// discarded at publish time when a newer snapshot has arrived meanwhile.
// Enrichment never reorders the list; store order is preserved.
type ConversationSyncEngine struct {
	log        *slog.Logger
	store      contract.ConversationStore
	profiles   contract.ProfileStore
	cache      *projection.ProfileCache
	bufferSize int

	generation atomic.Uint64

	mu        sync.Mutex
	listening bool
	cancel    context.CancelFunc
	updates   chan ConversationListUpdate
	current   []domain.Conversation
	userID    string
}

func NewConversationSyncEngine(log *slog.Logger, store contract.ConversationStore, profiles contract.ProfileStore, bufferSize int) *ConversationSyncEngine {
	return &ConversationSyncEngine{
		log:        log,
		store:      store,
		profiles:   profiles,
		cache:      projection.NewProfileCache(),
		bufferSize: bufferSize,
	}
}

// StartListening subscribes to the store for userID and returns the update
// stream. The engine does not resubscribe after a listener error; callers
// stop and start again.
func (e *ConversationSyncEngine) StartListening(ctx context.Context, userID string) (<-chan ConversationListUpdate, error) {
	e.mu.Lock()
	if e.listening {
		e.mu.Unlock()
		return nil, errors.ErrAlreadyListening
	}
	watchCtx, cancel := context.WithCancel(ctx)
	snapshots, err := e.store.WatchConversations(watchCtx, userID)
	if err != nil {
		cancel()
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	e.listening = true
	e.cancel = cancel
	e.userID = userID
	e.updates = make(chan ConversationListUpdate, e.bufferSize)
	updates := e.updates
	e.mu.Unlock()

	go e.consume(watchCtx, userID, snapshots)
	return updates, nil
}

// StopListening synchronously detaches the subscription. The listening flag
// flips under the publish mutex, so once this returns no in-flight
// enrichment can reach the update channel.
func (e *ConversationSyncEngine) StopListening() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.listening {
		return
	}
	e.listening = false
	e.cancel()
	close(e.updates)
	e.current = nil
}

// TotalUnreadCount sums the current user's unread counters across the most
// recently published list.
func (e *ConversationSyncEngine) TotalUnreadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.TotalUnread(e.current, e.userID)
}

// Conversations returns the most recently published enriched list.
func (e *ConversationSyncEngine) Conversations() []domain.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Conversation(nil), e.current...)
}

func (e *ConversationSyncEngine) consume(ctx context.Context, userID string, snapshots <-chan contract.ConversationSnapshot) {
	for snapshot := range snapshots {
		if snapshot.Err != nil {
			e.publish(e.generation.Add(1), ConversationListUpdate{Err: snapshot.Err})
			return
		}
		gen := e.generation.Add(1)
		// Each snapshot enriches in its own goroutine so a slow profile
		// fetch for an old snapshot cannot delay a newer one. The
		// generation check at publish time drops the loser.
		go e.enrich(ctx, userID, gen, snapshot.Conversations)
	}
}

func (e *ConversationSyncEngine) enrich(ctx context.Context, userID string, gen uint64, conversations []domain.Conversation) {
	others := lo.Uniq(lo.FilterMap(conversations, func(c domain.Conversation, _ int) (string, bool) {
		other := c.OtherParticipant(userID)
		return other, other != ""
	}))
	missing := lo.Filter(others, func(id string, _ int) bool {
		return e.cache.NeedsFetch(id)
	})

	var wg sync.WaitGroup
	for _, id := range missing {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			e.fetchInto(ctx, id)
		}(id)
	}
	wg.Wait()

	enriched := lo.Map(conversations, func(c domain.Conversation, _ int) domain.Conversation {
		return e.applyProfile(c, userID)
	})
	e.publish(gen, ConversationListUpdate{
		Conversations: enriched,
		TotalUnread:   domain.TotalUnread(enriched, userID),
	})
}

// fetchInto resolves the profile and company name of one user in parallel
// and stores whatever succeeded. A failed fetch stays absent and is retried
// on the next snapshot; it never blocks the publish.
func (e *ConversationSyncEngine) fetchInto(ctx context.Context, userID string) {
	var wg sync.WaitGroup
	if _, ok := e.cache.Get(userID); !ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			profile, err := e.profiles.FetchProfile(ctx, userID)
			if err != nil {
				e.log.Warn("Profile fetch failed", "user", userID, "error", err)
				return
			}
			e.cache.Put(userID, profile)
		}()
	}
	if _, ok := e.cache.CompanyName(userID); !ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name, err := e.profiles.FetchCompanyByUser(ctx, userID)
			if err != nil {
				e.log.Warn("Company fetch failed", "user", userID, "error", err)
				return
			}
			e.cache.PutCompanyName(userID, name)
		}()
	}
	wg.Wait()
}

func (e *ConversationSyncEngine) applyProfile(c domain.Conversation, userID string) domain.Conversation {
	other := c.OtherParticipant(userID)
	profile, ok := e.cache.Get(other)
	if !ok {
		return c
	}
	c.OtherParticipantName = profile.DisplayName
	c.OtherParticipantImageURL = profile.ImageURL
	// Known-empty company falls back to the role/title field.
	if company, known := e.cache.CompanyName(other); known && company != "" {
		c.OtherParticipantCompany = company
	} else {
		c.OtherParticipantCompany = profile.Role
	}
	return c
}

func (e *ConversationSyncEngine) publish(gen uint64, update ConversationListUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.listening {
		e.log.Debug("Engine stopped, update discarded")
		return
	}
	if gen != e.generation.Load() {
		e.log.Debug("Stale enrichment discarded", "generation", gen)
		return
	}
	e.current = update.Conversations
	select {
	case e.updates <- update:
	default:
		e.log.Warn("Update channel full, dropping conversation update", "user", e.userID)
	}
}
