// Package room derives canonical room identifiers for user pairs and tracks
// which live connections are joined to each room. A room is never persisted;
// it exists only as a key and, while connections are joined, as an entry in
// the Router's subscriber table.
package room

import "fmt"

// KeyPrefix is prepended to every canonical room key.
const KeyPrefix = "chat_"

// CanonicalKey returns the deterministic, order-independent room key for a
// pair of user IDs. The two IDs are ordered lexicographically and joined as
// "chat_<lo>_<hi>", so CanonicalKey(a, b) == CanonicalKey(b, a) for every
// pair. A user has no room with themself.
func CanonicalKey(a, b string) (string, error) {
	if a == "" || b == "" {
		return "", fmt.Errorf("room: empty user id")
	}
	if a == b {
		return "", fmt.Errorf("room: no room exists for a user with themself")
	}
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	return KeyPrefix + lo + "_" + hi, nil
}
