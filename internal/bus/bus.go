// Package bus provides the publish/subscribe mechanism that fans room events
// out to subscribed connections. The default implementation is in-process;
// a NATS-backed implementation with the same interface supports running the
// fan-out across multiple server processes.
package bus

import (
	"time"

	"github.com/pairchat/chat-app/internal/metrics"
	"github.com/pairchat/chat-app/internal/room"
)

// Subscriber receives events published to rooms it is subscribed to.
type Subscriber = room.Subscriber

// Bus fans published events out to every subscriber of a room. Connection
// session code depends only on this interface, so the backing implementation
// can be swapped without touching it.
type Bus interface {
	// Subscribe adds sub to the room's subscriber set. Idempotent.
	Subscribe(roomKey string, sub Subscriber) error

	// Unsubscribe removes sub from the room's subscriber set. Idempotent.
	Unsubscribe(roomKey string, sub Subscriber) error

	// Publish delivers event to every subscriber of the room at the moment
	// of publish. Publishing to a room with no subscribers is a no-op.
	Publish(roomKey string, event []byte) error
}

// MemoryBus is the in-process Bus. It delivers events synchronously to a
// snapshot of the room's membership, which gives FIFO ordering per room for
// a single publisher and guarantees each subscriber sees an event at most
// once.
type MemoryBus struct {
	router *room.Router
}

// NewMemoryBus creates a MemoryBus over the given router. The router is
// shared with the caller so connection lifecycle code can use LeaveAll on
// disconnect.
func NewMemoryBus(router *room.Router) *MemoryBus {
	return &MemoryBus{router: router}
}

// Subscribe adds sub to the room's subscriber set.
func (b *MemoryBus) Subscribe(roomKey string, sub Subscriber) error {
	b.router.Join(roomKey, sub)
	return nil
}

// Unsubscribe removes sub from the room's subscriber set.
func (b *MemoryBus) Unsubscribe(roomKey string, sub Subscriber) error {
	b.router.Leave(roomKey, sub)
	return nil
}

// Publish delivers event to the publish-time snapshot of the room. A
// subscriber that joins after the snapshot is taken will see only events
// published after its join completed.
func (b *MemoryBus) Publish(roomKey string, event []byte) error {
	start := time.Now()
	for _, sub := range b.router.Snapshot(roomKey) {
		sub.Deliver(event)
	}
	metrics.PublishLatency.Observe(time.Since(start).Seconds())
	return nil
}
