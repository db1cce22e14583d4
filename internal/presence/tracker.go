// Package presence tracks the authoritative online/offline flag and
// last-seen timestamp per user, backed by Redis. Connections racing to flip
// a user's state resolve last-writer-wins by completion time, which is the
// accepted semantics for presence.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for presence hashes.
	KeyPrefix = "presence:"
)

// State is one user's presence row.
type State struct {
	UserID   string `redis:"user_id" json:"user_id"`
	IsOnline bool   `redis:"is_online" json:"is_online"`
	LastSeen int64  `redis:"last_seen" json:"last_seen"` // unix timestamp
}

// Tracker manages presence state in Redis.
type Tracker struct {
	client *redis.Client
}

// NewTracker creates a presence tracker connected to Redis at the given
// address and verifies the connection.
func NewTracker(redisAddr string) (*Tracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("presence: redis connection failed: %w", err)
	}

	return &Tracker{client: client}, nil
}

// NewTrackerWithClient creates a Tracker over an existing Redis client.
func NewTrackerWithClient(client *redis.Client) *Tracker {
	return &Tracker{client: client}
}

// SetOnline updates the user's online flag and refreshes last_seen. Every
// mutation touches last_seen, including going offline.
func (t *Tracker) SetOnline(ctx context.Context, userID string, online bool) error {
	key := KeyPrefix + userID
	return t.client.HSet(ctx, key,
		"user_id", userID,
		"is_online", online,
		"last_seen", time.Now().Unix(),
	).Err()
}

// Get returns the user's presence state. A user never seen before reads as
// offline with a zero last_seen.
func (t *Tracker) Get(ctx context.Context, userID string) (State, error) {
	key := KeyPrefix + userID
	var state State
	if err := t.client.HGetAll(ctx, key).Scan(&state); err != nil {
		return State{}, fmt.Errorf("presence: get %s: %w", userID, err)
	}
	if state.UserID == "" {
		return State{UserID: userID}, nil
	}
	return state, nil
}

// GetMulti returns presence states for a set of users, in input order. Used
// by the directory service when rendering the roster.
func (t *Tracker) GetMulti(ctx context.Context, userIDs []string) ([]State, error) {
	out := make([]State, 0, len(userIDs))
	for _, id := range userIDs {
		state, err := t.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, nil
}

// Client returns the underlying Redis client for use by other packages.
func (t *Tracker) Client() *redis.Client {
	return t.client
}

// Close closes the Redis connection.
func (t *Tracker) Close() error {
	return t.client.Close()
}
