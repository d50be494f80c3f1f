// Package protocol defines the socket events exchanged between the zone chat
// client and the chat server. Every frame is a JSON object carrying a "type"
// discriminator next to the event payload.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Event type constants
// ---------------------------------------------------------------------------

// Client -> Server event types.
const (
	TypeJoinLocationChat    = "join-location-chat"
	TypeSendLocationMessage = "send-location-message"
)

// Server -> Client event types.
const (
	TypeLocationChatJoined = "location-chat-joined"
	TypeUsersUpdate        = "users-update"
	TypeNewLocationMessage = "new-location-message"
	TypeError              = "error"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the event type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so that the rest of the payload can be decoded later.
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
// Shared payloads
// ---------------------------------------------------------------------------

// Sender describes the author of a message as embedded by the server.
type Sender struct {
	ID          ID     `json:"id"`
	DisplayName string `json:"displayName"`
	Username    string `json:"username"`
}

// Message is a chat message as carried by history responses, zone snapshots
// and new-location-message events.
type Message struct {
	ID        ID        `json:"id"`
	Content   string    `json:"content"`
	SenderID  ID        `json:"senderId"`
	CreatedAt time.Time `json:"createdAt"`
	Sender    Sender    `json:"sender"`
}

// ---------------------------------------------------------------------------
// Client -> Server payloads
// ---------------------------------------------------------------------------

// JoinLocationChatMsg announces the client's position so the server can
// assign (or reassign) a zone.
type JoinLocationChatMsg struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	UserID ID      `json:"userId"`
}

// SendLocationMessageMsg submits a message to the active zone.
type SendLocationMessageMsg struct {
	ZoneID   ID     `json:"zoneId"`
	SenderID ID     `json:"senderId"`
	Content  string `json:"content"`
}

// ---------------------------------------------------------------------------
// Server -> Client payloads
// ---------------------------------------------------------------------------

// LocationChatJoinedMsg is sent by the server once the client has been
// placed in a zone. Name and Messages are optional.
type LocationChatJoinedMsg struct {
	ID          ID        `json:"id"`
	Name        string    `json:"name,omitempty"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	OnlineUsers int       `json:"onlineUsers"`
	Messages    []Message `json:"messages,omitempty"`
}

// UsersUpdateMsg reports the occupancy of a zone.
type UsersUpdateMsg struct {
	ZoneID      ID  `json:"zoneId"`
	OnlineUsers int `json:"onlineUsers"`
}

// NewLocationMessageMsg relays an authoritative message to zone members.
type NewLocationMessageMsg struct {
	Message
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HistoryResponse is the body of GET /zone-messages.
type HistoryResponse struct {
	Messages []Message `json:"messages"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseServerMessage parses a raw frame into a typed server event. It returns
// the event type, the decoded struct and any error. Unknown or client-only
// types are an error.
func ParseServerMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeLocationChatJoined:
		var m LocationChatJoinedMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeUsersUpdate:
		var m UsersUpdateMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeNewLocationMessage:
		var m NewLocationMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeError:
		var m ErrorMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown server message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewClientMessage creates the JSON frame for a client event. The payload is
// marshalled and msgType is injected under the "type" key.
func NewClientMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}
	if m == nil {
		m = make(map[string]json.RawMessage, 1)
	}

	typ, _ := json.Marshal(msgType)
	m["type"] = typ

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal client message: %w", err)
	}
	return out, nil
}
