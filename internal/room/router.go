package room

import (
	"hash/fnv"
	"sync"
)

// Subscriber is a live connection handle that can receive room events.
// Implementations must be comparable (pointer types) since the Router uses
// them as set members.
type Subscriber interface {
	Deliver(data []byte)
}

// shardCount is the number of lock-striped shards in the Router. Operations
// on rooms that hash to different shards never contend.
const shardCount = 32

type shard struct {
	mu    sync.RWMutex
	rooms map[string]map[Subscriber]struct{}
}

// Router maintains the subscriber set for each room. Join and Leave are
// idempotent, and Snapshot returns a consistent copy of a room's membership
// so a concurrent join never produces a torn read during fan-out.
type Router struct {
	shards [shardCount]*shard
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	r := &Router{}
	for i := range r.shards {
		r.shards[i] = &shard{rooms: make(map[string]map[Subscriber]struct{})}
	}
	return r
}

func (r *Router) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return r.shards[h.Sum32()%shardCount]
}

// Join adds sub to the room's subscriber set. Joining a room the subscriber
// is already in is a no-op; the return value reports whether the membership
// was newly created.
func (r *Router) Join(key string, sub Subscriber) bool {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.rooms[key]
	if !ok {
		members = make(map[Subscriber]struct{})
		s.rooms[key] = members
	}
	if _, exists := members[sub]; exists {
		return false
	}
	members[sub] = struct{}{}
	return true
}

// Leave removes sub from the room's subscriber set. Leaving a room the
// subscriber is not in is a no-op; the return value reports whether a
// membership was actually removed. Empty rooms are deleted from the table.
func (r *Router) Leave(key string, sub Subscriber) bool {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.rooms[key]
	if !ok {
		return false
	}
	if _, exists := members[sub]; !exists {
		return false
	}
	delete(members, sub)
	if len(members) == 0 {
		delete(s.rooms, key)
	}
	return true
}

// Snapshot returns a copy of the room's current subscriber set. The copy is
// taken under the shard lock, so every subscriber in it was fully joined at
// snapshot time. Returns nil for a room with no subscribers.
func (r *Router) Snapshot(key string) []Subscriber {
	s := r.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	members, ok := s.rooms[key]
	if !ok {
		return nil
	}
	out := make([]Subscriber, 0, len(members))
	for sub := range members {
		out = append(out, sub)
	}
	return out
}

// Count returns the number of subscribers currently joined to the room.
func (r *Router) Count(key string) int {
	s := r.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[key])
}

// LeaveAll removes sub from every room it is joined to. Each room's removal
// happens under that room's shard lock, so a concurrent publish either sees
// the subscriber fully present or fully absent per room.
func (r *Router) LeaveAll(sub Subscriber) {
	for _, s := range r.shards {
		s.mu.Lock()
		for key, members := range s.rooms {
			if _, exists := members[sub]; exists {
				delete(members, sub)
				if len(members) == 0 {
					delete(s.rooms, key)
				}
			}
		}
		s.mu.Unlock()
	}
}
