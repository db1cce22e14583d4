// Package protocol defines the WebSocket frame types exchanged between the
// chat client and server. All frames are serialized as JSON and carry a
// "type" discriminator. The inbound and outbound sets are closed: two frames
// may arrive from a client, three may be sent to one, and anything else is a
// protocol violation the caller is expected to tolerate.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client -> Server frame types.
const (
	TypeChatMessage = "chat_message"
	TypeTyping      = "typing"
)

// Server -> Client frame types. TypeChatMessage and TypeTyping are reused on
// the outbound side with a "sender" field added.
const (
	TypeUserStatus = "user_status"
)

// ErrUnknownType is returned by ParseClientFrame when the type discriminator
// does not name a client frame.
var ErrUnknownType = errors.New("protocol: unknown frame type")

// Envelope holds the frame type and the raw JSON payload for deferred
// decoding into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so that the rest of the payload can be decoded later into the
// appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server frames
// ---------------------------------------------------------------------------

// ChatMessageFrame carries a chat message from the client to its peer.
type ChatMessageFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// TypingFrame signals whether the client is currently typing.
type TypingFrame struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
}

// ClientFrame is the closed set of frames a client may send. Exactly one of
// the fields is non-nil after a successful ParseClientFrame.
type ClientFrame struct {
	ChatMessage *ChatMessageFrame
	Typing      *TypingFrame
}

// ParseClientFrame parses raw WebSocket bytes into a typed client frame.
// Unknown type discriminators yield ErrUnknownType; malformed JSON or
// payloads that fail to decode return a wrapped error. Callers treat every
// error as a tolerated malformed frame.
func ParseClientFrame(data []byte) (ClientFrame, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ClientFrame{}, fmt.Errorf("protocol: failed to parse frame: %w", err)
	}

	switch env.Type {
	case TypeChatMessage:
		var f ChatMessageFrame
		if err := json.Unmarshal(env.Raw, &f); err != nil {
			return ClientFrame{}, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
		}
		return ClientFrame{ChatMessage: &f}, nil
	case TypeTyping:
		var f TypingFrame
		if err := json.Unmarshal(env.Raw, &f); err != nil {
			return ClientFrame{}, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
		}
		return ClientFrame{Typing: &f}, nil
	default:
		return ClientFrame{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// ---------------------------------------------------------------------------
// Server -> Client frames
// ---------------------------------------------------------------------------

// ServerChatMessage relays a chat message to the other side of the room.
type ServerChatMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Sender  string `json:"sender"`
}

// ServerTyping relays the peer's typing indicator.
type ServerTyping struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
	Sender   string `json:"sender"`
}

// ServerUserStatus announces a peer's online/offline transition.
type ServerUserStatus struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	IsOnline bool   `json:"is_online"`
}

// NewChatMessage builds the outbound chat_message frame bytes.
func NewChatMessage(message, sender string) ([]byte, error) {
	return marshalFrame(ServerChatMessage{Type: TypeChatMessage, Message: message, Sender: sender})
}

// NewTyping builds the outbound typing frame bytes.
func NewTyping(isTyping bool, sender string) ([]byte, error) {
	return marshalFrame(ServerTyping{Type: TypeTyping, IsTyping: isTyping, Sender: sender})
}

// NewUserStatus builds the outbound user_status frame bytes.
func NewUserStatus(username string, isOnline bool) ([]byte, error) {
	return marshalFrame(ServerUserStatus{Type: TypeUserStatus, Username: username, IsOnline: isOnline})
}

func marshalFrame(v interface{}) ([]byte, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server frame: %w", err)
	}
	return out, nil
}
