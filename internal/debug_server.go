package internal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/samber/lo"

	"mentorlink/domain"
	"mentorlink/runtime"
)

type conversationRow struct {
	ID          string `json:"id"`
	With        string `json:"with"`
	Company     string `json:"company,omitempty"`
	LastMessage string `json:"lastMessage"`
	Unread      int    `json:"unread"`
}

type inboxView struct {
	Conversations []conversationRow `json:"conversations"`
	TotalUnread   int               `json:"totalUnread"`
}

// StartDebugServer exposes the engine's current enriched state as JSON on
// /inbox. Local inspection only, no auth.
func StartDebugServer(log *slog.Logger, port int, userID string, engine *runtime.ConversationSyncEngine) {
	mux := http.NewServeMux()
	mux.HandleFunc("/inbox", func(w http.ResponseWriter, _ *http.Request) {
		view := inboxView{
			Conversations: lo.Map(engine.Conversations(), func(c domain.Conversation, _ int) conversationRow {
				return conversationRow{
					ID:          c.ID,
					With:        c.OtherParticipantName,
					Company:     c.OtherParticipantCompany,
					LastMessage: c.LastMessage,
					Unread:      c.UnreadFor(userID),
				}
			}),
			TotalUnread: engine.TotalUnreadCount(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(view); err != nil {
			log.Error("Debug view encoding failed", "error", err)
		}
	})

	go func() {
		addr := fmt.Sprintf(":%d", port)
		log.Info("Debug server listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("Debug server stopped", "error", err)
		}
	}()
}
