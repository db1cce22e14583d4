// Package session implements the per-connection state machine at the center
// of the messaging core. A session is created when an authenticated
// connection opens against a target peer, lives in exactly one room, and
// dies with the connection. All state transitions are:
//
//	Unauthenticated -> Joining -> Active -> Closed
//
// with failed connects jumping straight to Closed.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/pairchat/chat-app/internal/bus"
	"github.com/pairchat/chat-app/internal/directory"
	"github.com/pairchat/chat-app/internal/metrics"
	"github.com/pairchat/chat-app/internal/protocol"
	"github.com/pairchat/chat-app/internal/room"
	"github.com/pairchat/chat-app/internal/store"
)

// Connect error taxonomy. Both are fatal to the connection attempt and leave
// no core state behind.
var (
	ErrUnauthorized = errors.New("session: no valid identity attached")
	ErrPeerNotFound = errors.New("session: peer not found")
)

// State is the session lifecycle state.
type State int32

const (
	StateUnauthenticated State = iota
	StateJoining
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MessageLog is the slice of the message store a session writes through.
type MessageLog interface {
	Append(ctx context.Context, sender, receiver, body string) (*store.ChatMessage, error)
}

// Presence is the slice of the presence tracker a session mutates.
type Presence interface {
	SetOnline(ctx context.Context, userID string, online bool) error
}

// Deps bundles the collaborators a session needs. The bus is consumed only
// through its interface so the in-process and NATS implementations are
// interchangeable here.
type Deps struct {
	Bus      bus.Bus
	Log      MessageLog
	Presence Presence
	Resolver directory.Resolver
}

// Session is one live connection's state machine.
type Session struct {
	deps Deps
	conn bus.Subscriber

	self    directory.User
	peer    directory.User
	roomKey string

	state     int32 // atomic State
	closeOnce sync.Once
}

// Connect builds a session for an inbound connection. The identity must have
// been authenticated by the outer layer before the core sees it; an empty
// identity fails with ErrUnauthorized and a peer that does not resolve fails
// with ErrPeerNotFound. Both failures are terminal and touch no core state:
// no subscription is created and no presence event is published.
//
// On success the connection is subscribed to the pair's canonical room,
// presence is flipped online, and a user_status event announces it.
func Connect(ctx context.Context, deps Deps, conn bus.Subscriber, identity, peerIdentifier string) (*Session, error) {
	if identity == "" {
		return nil, ErrUnauthorized
	}

	self, err := deps.Resolver.ResolveUser(ctx, identity)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("session: resolve identity: %w", err)
	}

	peer, err := deps.Resolver.ResolveUser(ctx, peerIdentifier)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, ErrPeerNotFound
		}
		return nil, fmt.Errorf("session: resolve peer: %w", err)
	}

	key, err := room.CanonicalKey(self.ID, peer.ID)
	if err != nil {
		// A user cannot open a room with themself; treat the target as an
		// invalid peer.
		return nil, fmt.Errorf("%w: %v", ErrPeerNotFound, err)
	}

	s := &Session{
		deps:    deps,
		conn:    conn,
		self:    *self,
		peer:    *peer,
		roomKey: key,
		state:   int32(StateJoining),
	}

	if err := deps.Bus.Subscribe(key, conn); err != nil {
		atomic.StoreInt32(&s.state, int32(StateClosed))
		return nil, fmt.Errorf("session: subscribe room %s: %w", key, err)
	}
	atomic.StoreInt32(&s.state, int32(StateActive))
	metrics.RoomSubscriptions.Inc()

	if err := deps.Presence.SetOnline(ctx, self.ID, true); err != nil {
		log.Printf("session: presence online user=%s: %v", self.ID, err)
	}
	metrics.PresenceFlips.WithLabelValues("online").Inc()

	s.publishStatus(true)
	return s, nil
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return State(atomic.LoadInt32(&s.state))
}

// RoomKey returns the canonical room key this session is joined to.
func (s *Session) RoomKey() string {
	return s.roomKey
}

// User returns the authenticated user this session belongs to.
func (s *Session) User() directory.User {
	return s.self
}

// Peer returns the peer the session is chatting with.
func (s *Session) Peer() directory.User {
	return s.peer
}

// Receive handles one inbound frame from the connection. Chat messages are
// durably appended to the log before the corresponding event is published,
// so a message visible live is always recoverable from history; a persist
// failure is returned (wrapping store.ErrStoreUnavailable) and nothing is
// published. Typing indicators are fire-and-forget. Malformed or unknown
// frames are dropped without terminating the session.
//
// Chat message bodies carry no content constraints: empty or
// whitespace-only bodies pass through unchanged.
func (s *Session) Receive(ctx context.Context, data []byte) error {
	if s.State() != StateActive {
		return nil
	}

	frame, err := protocol.ParseClientFrame(data)
	if err != nil {
		// Tolerated: drop the frame, keep the session open.
		log.Printf("session: dropping malformed frame room=%s user=%s: %v", s.roomKey, s.self.ID, err)
		metrics.FramesDropped.Inc()
		return nil
	}

	switch {
	case frame.ChatMessage != nil:
		if _, err := s.deps.Log.Append(ctx, s.self.ID, s.peer.ID, frame.ChatMessage.Message); err != nil {
			return fmt.Errorf("session: persist message: %w", err)
		}
		metrics.MessagesPersisted.Inc()

		event, err := protocol.NewChatMessage(frame.ChatMessage.Message, s.self.DisplayName)
		if err != nil {
			return fmt.Errorf("session: build chat event: %w", err)
		}
		if err := s.deps.Bus.Publish(s.roomKey, event); err != nil {
			return fmt.Errorf("session: publish chat event: %w", err)
		}
		metrics.EventsPublished.WithLabelValues(protocol.TypeChatMessage).Inc()

	case frame.Typing != nil:
		event, err := protocol.NewTyping(frame.Typing.IsTyping, s.self.DisplayName)
		if err != nil {
			return fmt.Errorf("session: build typing event: %w", err)
		}
		if err := s.deps.Bus.Publish(s.roomKey, event); err != nil {
			return fmt.Errorf("session: publish typing event: %w", err)
		}
		metrics.EventsPublished.WithLabelValues(protocol.TypeTyping).Inc()
	}

	return nil
}

// Disconnect tears the session down: presence goes offline, one offline
// user_status event is published, and the connection leaves the room. It is
// idempotent: transport close, read errors, heartbeat eviction, and shutdown
// may all race to call it, and only the first has effect.
func (s *Session) Disconnect(ctx context.Context) {
	s.closeOnce.Do(func() {
		prev := State(atomic.SwapInt32(&s.state, int32(StateClosed)))
		if prev != StateActive {
			return
		}

		if err := s.deps.Presence.SetOnline(ctx, s.self.ID, false); err != nil {
			log.Printf("session: presence offline user=%s: %v", s.self.ID, err)
		}
		metrics.PresenceFlips.WithLabelValues("offline").Inc()

		s.publishStatus(false)

		if err := s.deps.Bus.Unsubscribe(s.roomKey, s.conn); err != nil {
			log.Printf("session: unsubscribe room=%s user=%s: %v", s.roomKey, s.self.ID, err)
		}
		metrics.RoomSubscriptions.Dec()

		log.Printf("session: closed room=%s user=%s", s.roomKey, s.self.ID)
	})
}

func (s *Session) publishStatus(online bool) {
	event, err := protocol.NewUserStatus(s.self.DisplayName, online)
	if err != nil {
		log.Printf("session: build user_status: %v", err)
		return
	}
	if err := s.deps.Bus.Publish(s.roomKey, event); err != nil {
		log.Printf("session: publish user_status room=%s: %v", s.roomKey, err)
		return
	}
	metrics.EventsPublished.WithLabelValues(protocol.TypeUserStatus).Inc()
}
