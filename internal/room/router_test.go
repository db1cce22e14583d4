package room

import (
	"sync"
	"testing"
)

// recorder is a minimal Subscriber for router tests.
type recorder struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (r *recorder) Deliver(data []byte) {
	r.mu.Lock()
	r.msgs = append(r.msgs, data)
	r.mu.Unlock()
}

func TestJoinIdempotent(t *testing.T) {
	router := NewRouter()
	sub := &recorder{}

	if !router.Join("chat_a_b", sub) {
		t.Fatal("expected first Join to report a new membership")
	}
	if router.Join("chat_a_b", sub) {
		t.Fatal("expected second Join to be a no-op")
	}
	if n := router.Count("chat_a_b"); n != 1 {
		t.Errorf("expected 1 subscriber, got %d", n)
	}
}

func TestLeaveIdempotent(t *testing.T) {
	router := NewRouter()
	sub := &recorder{}

	router.Join("chat_a_b", sub)

	if !router.Leave("chat_a_b", sub) {
		t.Fatal("expected first Leave to remove the membership")
	}
	if router.Leave("chat_a_b", sub) {
		t.Fatal("expected second Leave to be a no-op")
	}
	if router.Leave("chat_never_joined", sub) {
		t.Fatal("expected Leave on an unjoined room to be a no-op")
	}
}

func TestSnapshot(t *testing.T) {
	router := NewRouter()
	sub1 := &recorder{}
	sub2 := &recorder{}

	router.Join("chat_a_b", sub1)
	router.Join("chat_a_b", sub2)
	router.Join("chat_a_c", sub1)

	snap := router.Snapshot("chat_a_b")
	if len(snap) != 2 {
		t.Fatalf("expected 2 subscribers in snapshot, got %d", len(snap))
	}

	if snap := router.Snapshot("chat_empty"); snap != nil {
		t.Errorf("expected nil snapshot for empty room, got %d entries", len(snap))
	}
}

func TestLeaveAll(t *testing.T) {
	router := NewRouter()
	sub := &recorder{}
	other := &recorder{}

	router.Join("chat_a_b", sub)
	router.Join("chat_a_c", sub)
	router.Join("chat_a_b", other)

	router.LeaveAll(sub)

	if n := router.Count("chat_a_b"); n != 1 {
		t.Errorf("expected 1 subscriber left in chat_a_b, got %d", n)
	}
	if n := router.Count("chat_a_c"); n != 0 {
		t.Errorf("expected 0 subscribers left in chat_a_c, got %d", n)
	}
}

// Concurrent joins, leaves, and snapshots on the same room must not race or
// produce partial memberships.
func TestConcurrentJoinSnapshot(t *testing.T) {
	router := NewRouter()

	var wg sync.WaitGroup
	subs := make([]*recorder, 50)
	for i := range subs {
		subs[i] = &recorder{}
	}

	for _, sub := range subs {
		wg.Add(1)
		go func(s *recorder) {
			defer wg.Done()
			router.Join("chat_a_b", s)
			router.Snapshot("chat_a_b")
		}(sub)
	}
	wg.Wait()

	if n := router.Count("chat_a_b"); n != len(subs) {
		t.Errorf("expected %d subscribers, got %d", len(subs), n)
	}
}
