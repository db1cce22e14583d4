package room

import "testing"

func TestCanonicalKey_OrderIndependent(t *testing.T) {
	ab, err := CanonicalKey("alice", "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ba, err := CanonicalKey("bob", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ab != ba {
		t.Errorf("expected CanonicalKey(a,b) == CanonicalKey(b,a): %q vs %q", ab, ba)
	}
	if ab != "chat_alice_bob" {
		t.Errorf("expected %q, got %q", "chat_alice_bob", ab)
	}
}

func TestCanonicalKey_DistinctPairs(t *testing.T) {
	ab, _ := CanonicalKey("alice", "bob")
	ac, _ := CanonicalKey("alice", "carol")
	bc, _ := CanonicalKey("bob", "carol")

	if ab == ac || ab == bc || ac == bc {
		t.Errorf("expected distinct keys for distinct pairs: %q %q %q", ab, ac, bc)
	}
}

func TestCanonicalKey_NumericIDs(t *testing.T) {
	// Opaque IDs sort lexicographically, so "10" orders before "2".
	k1, _ := CanonicalKey("2", "10")
	k2, _ := CanonicalKey("10", "2")
	if k1 != k2 {
		t.Errorf("expected symmetric keys, got %q vs %q", k1, k2)
	}
	if k1 != "chat_10_2" {
		t.Errorf("expected %q, got %q", "chat_10_2", k1)
	}
}

func TestCanonicalKey_SelfPair(t *testing.T) {
	if _, err := CanonicalKey("alice", "alice"); err == nil {
		t.Fatal("expected error for self pair")
	}
}

func TestCanonicalKey_EmptyID(t *testing.T) {
	if _, err := CanonicalKey("", "bob"); err == nil {
		t.Fatal("expected error for empty id")
	}
	if _, err := CanonicalKey("alice", ""); err == nil {
		t.Fatal("expected error for empty id")
	}
}
