package bus

import (
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pairchat/chat-app/internal/messaging"
	"github.com/pairchat/chat-app/internal/metrics"
)

// NATSBus implements Bus over NATS subjects, one subject per room
// (room.<key>). It lets the fan-out span multiple server processes: every
// process subscribes its local connections and NATS carries events between
// them. Local delivery order per room follows NATS per-subscription ordering,
// which is FIFO for a single publisher.
type NATSBus struct {
	client *messaging.Client

	mu   sync.Mutex
	subs map[string]map[Subscriber]*nats.Subscription // room key -> subscriber -> NATS sub
}

// NewNATSBus creates a NATSBus over an established NATS client.
func NewNATSBus(client *messaging.Client) *NATSBus {
	return &NATSBus{
		client: client,
		subs:   make(map[string]map[Subscriber]*nats.Subscription),
	}
}

// Subscribe creates a NATS subscription on the room's subject that forwards
// every message to sub. Subscribing an already-subscribed handle is a no-op.
func (b *NATSBus) Subscribe(roomKey string, sub Subscriber) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.subs[roomKey]
	if !ok {
		members = make(map[Subscriber]*nats.Subscription)
		b.subs[roomKey] = members
	}
	if _, exists := members[sub]; exists {
		return nil
	}

	natsSub, err := b.client.Subscribe(messaging.RoomSubject(roomKey), func(data []byte) {
		sub.Deliver(data)
	})
	if err != nil {
		return err
	}
	members[sub] = natsSub
	return nil
}

// Unsubscribe tears down the subscriber's NATS subscription for the room.
// Unsubscribing a handle that is not subscribed is a no-op.
func (b *NATSBus) Unsubscribe(roomKey string, sub Subscriber) error {
	b.mu.Lock()
	members, ok := b.subs[roomKey]
	if !ok {
		b.mu.Unlock()
		return nil
	}
	natsSub, exists := members[sub]
	if !exists {
		b.mu.Unlock()
		return nil
	}
	delete(members, sub)
	if len(members) == 0 {
		delete(b.subs, roomKey)
	}
	b.mu.Unlock()

	if err := natsSub.Unsubscribe(); err != nil {
		log.Printf("[bus] nats unsubscribe room=%s: %v", roomKey, err)
		return err
	}
	return nil
}

// Publish sends the event to the room's subject. Every subscribed process
// (including this one) delivers it to its local subscribers.
func (b *NATSBus) Publish(roomKey string, event []byte) error {
	start := time.Now()
	err := b.client.Publish(messaging.RoomSubject(roomKey), event)
	metrics.PublishLatency.Observe(time.Since(start).Seconds())
	return err
}
