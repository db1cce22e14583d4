package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/pairchat/chat-app/internal/store"
)

type handlers struct {
	deps Deps
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// getHistory returns the full two-party conversation between user_a and
// user_b, oldest first. Both participants see the same transcript, so the
// parameter order does not matter.
func (h *handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	userA := r.URL.Query().Get("user_a")
	userB := r.URL.Query().Get("user_b")
	if userA == "" || userB == "" {
		writeError(w, http.StatusBadRequest, "user_a and user_b are required")
		return
	}

	msgs, err := h.deps.Messages.History(r.Context(), userA, userB)
	if err != nil {
		if errors.Is(err, store.ErrStoreUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "message store unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if msgs == nil {
		msgs = []store.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

type markReadRequest struct {
	Receiver string `json:"receiver"`
	Sender   string `json:"sender"`
}

// postMarkRead flags every unread message from sender to receiver as read.
// Called when the receiver opens the room.
func (h *handlers) postMarkRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Receiver == "" || req.Sender == "" {
		writeError(w, http.StatusBadRequest, "receiver and sender are required")
		return
	}

	marked, err := h.deps.Messages.MarkRead(r.Context(), req.Receiver, req.Sender)
	if err != nil {
		if errors.Is(err, store.ErrStoreUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "message store unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to mark messages read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": marked})
}

// getRoster returns every known peer for a user with presence, the last
// message exchanged, and the unread count, sorted by the roster source.
func (h *handlers) getRoster(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	entries, err := h.deps.Roster.For(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build roster")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"roster": entries})
}

func (h *handlers) getPresence(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	state, err := h.deps.Presence.Get(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read presence")
		return
	}
	writeJSON(w, http.StatusOK, state)
}
