// Package api exposes the narrow HTTP surface the Identity & Directory
// Service calls when rendering rosters and chat rooms: message history,
// read-marking on room entry, roster assembly, and presence snapshots.
// Everything here is glue over the message store and presence tracker; no
// messaging-core logic lives in this package.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pairchat/chat-app/internal/directory"
	"github.com/pairchat/chat-app/internal/metrics"
	"github.com/pairchat/chat-app/internal/presence"
	"github.com/pairchat/chat-app/internal/store"
)

// Messages is the slice of the message store the API serves.
type Messages interface {
	History(ctx context.Context, userA, userB string) ([]store.ChatMessage, error)
	MarkRead(ctx context.Context, receiver, sender string) (int64, error)
}

// Presence is the slice of the presence tracker the API serves.
type Presence interface {
	Get(ctx context.Context, userID string) (presence.State, error)
}

// RosterSource assembles roster entries for a user.
type RosterSource interface {
	For(ctx context.Context, userID string) ([]directory.RosterEntry, error)
}

// Deps bundles the collaborators the API handlers need.
type Deps struct {
	Messages Messages
	Presence Presence
	Roster   RosterSource
}

// NewRouter builds the chi router for the directory-facing API.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	h := &handlers{deps: deps}

	r.Route("/api", func(r chi.Router) {
		r.Get("/history", h.getHistory)
		r.Post("/rooms/read", h.postMarkRead)
		r.Get("/roster", h.getRoster)
		r.Get("/presence", h.getPresence)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}
