package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pairchat/chat-app/internal/directory"
	"github.com/pairchat/chat-app/internal/presence"
	"github.com/pairchat/chat-app/internal/store"
)

type fakeMessages struct {
	history []store.ChatMessage
	marked  int64
	err     error

	lastReceiver string
	lastSender   string
}

func (f *fakeMessages) History(_ context.Context, _, _ string) ([]store.ChatMessage, error) {
	return f.history, f.err
}

func (f *fakeMessages) MarkRead(_ context.Context, receiver, sender string) (int64, error) {
	f.lastReceiver = receiver
	f.lastSender = sender
	return f.marked, f.err
}

type fakePresence struct {
	state presence.State
	err   error
}

func (f *fakePresence) Get(_ context.Context, _ string) (presence.State, error) {
	return f.state, f.err
}

type fakeRoster struct {
	entries []directory.RosterEntry
	err     error
}

func (f *fakeRoster) For(_ context.Context, _ string) ([]directory.RosterEntry, error) {
	return f.entries, f.err
}

func newTestRouter(msgs *fakeMessages, pres *fakePresence, roster *fakeRoster) http.Handler {
	if msgs == nil {
		msgs = &fakeMessages{}
	}
	if pres == nil {
		pres = &fakePresence{}
	}
	if roster == nil {
		roster = &fakeRoster{}
	}
	return NewRouter(Deps{Messages: msgs, Presence: pres, Roster: roster})
}

func TestGetHistory(t *testing.T) {
	msgs := &fakeMessages{history: []store.ChatMessage{
		{ID: "m1", SenderID: "1", ReceiverID: "2", Body: "hello", CreatedAt: time.Now()},
		{ID: "m2", SenderID: "2", ReceiverID: "1", Body: "hi", CreatedAt: time.Now()},
	}}
	router := newTestRouter(msgs, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/history?user_a=1&user_b=2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Messages []store.ChatMessage `json:"messages"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(body.Messages))
	}
	if body.Messages[0].Body != "hello" {
		t.Errorf("first message = %q, want %q", body.Messages[0].Body, "hello")
	}
}

func TestGetHistoryMissingParams(t *testing.T) {
	router := newTestRouter(nil, nil, nil)

	for _, target := range []string{"/api/history", "/api/history?user_a=1", "/api/history?user_b=2"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestGetHistoryEmptyConversation(t *testing.T) {
	router := newTestRouter(&fakeMessages{history: nil}, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/history?user_a=1&user_b=2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	// nil slice must serialize as [], not null
	if !strings.Contains(rec.Body.String(), `"messages":[]`) {
		t.Errorf("body = %s, want empty messages array", rec.Body.String())
	}
}

func TestGetHistoryStoreUnavailable(t *testing.T) {
	msgs := &fakeMessages{err: store.ErrStoreUnavailable}
	router := newTestRouter(msgs, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/history?user_a=1&user_b=2", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestPostMarkRead(t *testing.T) {
	msgs := &fakeMessages{marked: 3}
	router := newTestRouter(msgs, nil, nil)

	body := strings.NewReader(`{"receiver":"2","sender":"1"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/rooms/read", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if msgs.lastReceiver != "2" || msgs.lastSender != "1" {
		t.Errorf("marked receiver=%q sender=%q, want 2/1", msgs.lastReceiver, msgs.lastSender)
	}
	var resp map[string]int64
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["marked"] != 3 {
		t.Errorf("marked = %d, want 3", resp["marked"])
	}
}

func TestPostMarkReadBadBody(t *testing.T) {
	router := newTestRouter(nil, nil, nil)

	cases := []string{`not json`, `{}`, `{"receiver":"2"}`, `{"sender":"1"}`}
	for _, body := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/rooms/read", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestGetRoster(t *testing.T) {
	roster := &fakeRoster{entries: []directory.RosterEntry{
		{
			Peer:        directory.User{ID: "2", DisplayName: "Bob"},
			IsOnline:    true,
			UnreadCount: 4,
		},
	}}
	router := newTestRouter(nil, nil, roster)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/roster?user=1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Roster []directory.RosterEntry `json:"roster"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Roster) != 1 || body.Roster[0].Peer.DisplayName != "Bob" {
		t.Fatalf("unexpected roster: %+v", body.Roster)
	}
	if body.Roster[0].UnreadCount != 4 {
		t.Errorf("unread = %d, want 4", body.Roster[0].UnreadCount)
	}
}

func TestGetPresence(t *testing.T) {
	pres := &fakePresence{state: presence.State{UserID: "1", IsOnline: true, LastSeen: 12345}}
	router := newTestRouter(nil, pres, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/presence?user=1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var state presence.State
	if err := json.NewDecoder(rec.Body).Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !state.IsOnline || state.LastSeen != 12345 {
		t.Errorf("unexpected state: %+v", state)
	}
}

func TestGetPresenceMissingUser(t *testing.T) {
	router := newTestRouter(nil, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/presence", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(nil, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestMarkReadStoreFailure(t *testing.T) {
	msgs := &fakeMessages{err: errors.New("boom")}
	router := newTestRouter(msgs, nil, nil)

	body := strings.NewReader(`{"receiver":"2","sender":"1"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/rooms/read", body))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
