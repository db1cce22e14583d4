package directory

import (
	"context"
	"fmt"

	"github.com/pairchat/chat-app/internal/presence"
	"github.com/pairchat/chat-app/internal/store"
)

// RosterEntry is one peer row on a user's roster: the peer, their presence,
// the most recent message either direction (may be nil), and how many of
// their messages the viewing user has not read.
type RosterEntry struct {
	Peer        User               `json:"peer"`
	IsOnline    bool               `json:"is_online"`
	LastSeen    int64              `json:"last_seen"`
	LastMessage *store.ChatMessage `json:"last_message,omitempty"`
	UnreadCount int                `json:"unread_count"`
}

// Roster assembles roster entries for a user: all peers from the directory,
// each with presence, last-message preview, and unread count.
type Roster struct {
	lister   Lister
	messages *store.Store
	presence *presence.Tracker
}

// NewRoster creates a roster assembler over the directory, message store,
// and presence tracker.
func NewRoster(lister Lister, messages *store.Store, tracker *presence.Tracker) *Roster {
	return &Roster{lister: lister, messages: messages, presence: tracker}
}

// For returns the roster for the given user, ordered as the directory lists
// peers.
func (r *Roster) For(ctx context.Context, userID string) ([]RosterEntry, error) {
	peers, err := r.lister.ListPeers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("directory: roster peers: %w", err)
	}

	ids := make([]string, len(peers))
	for i, peer := range peers {
		ids[i] = peer.ID
	}
	states, err := r.presence.GetMulti(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("directory: roster presence: %w", err)
	}

	out := make([]RosterEntry, 0, len(peers))
	for i, peer := range peers {
		entry := RosterEntry{Peer: peer}
		entry.IsOnline = states[i].IsOnline
		entry.LastSeen = states[i].LastSeen

		last, err := r.messages.LastMessage(ctx, userID, peer.ID)
		if err != nil {
			return nil, fmt.Errorf("directory: roster last message: %w", err)
		}
		entry.LastMessage = last

		unread, err := r.messages.UnreadCount(ctx, userID, peer.ID)
		if err != nil {
			return nil, fmt.Errorf("directory: roster unread: %w", err)
		}
		entry.UnreadCount = unread

		out = append(out, entry)
	}
	return out, nil
}
