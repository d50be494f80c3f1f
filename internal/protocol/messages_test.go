package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Test: Parsing a location-chat-joined event with a snapshot
// ---------------------------------------------------------------------------

func TestParseServerMessage_LocationChatJoined(t *testing.T) {
	input := []byte(`{"type":"location-chat-joined","id":42,"name":"Old Town",
		"latitude":48.1,"longitude":11.5,"onlineUsers":3,
		"messages":[{"id":1,"content":"hey","senderId":7,"createdAt":"2024-05-01T10:00:00Z",
		"sender":{"id":7,"displayName":"Ann","username":"ann"}}]}`)

	msgType, msg, err := ParseServerMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeLocationChatJoined {
		t.Fatalf("expected type %q, got %q", TypeLocationChatJoined, msgType)
	}

	joined, ok := msg.(LocationChatJoinedMsg)
	if !ok {
		t.Fatalf("expected LocationChatJoinedMsg, got %T", msg)
	}
	if joined.ID != "42" {
		t.Errorf("expected id %q, got %q", "42", joined.ID)
	}
	if joined.Name != "Old Town" {
		t.Errorf("expected name %q, got %q", "Old Town", joined.Name)
	}
	if joined.OnlineUsers != 3 {
		t.Errorf("expected 3 online users, got %d", joined.OnlineUsers)
	}
	if len(joined.Messages) != 1 {
		t.Fatalf("expected 1 snapshot message, got %d", len(joined.Messages))
	}
	m := joined.Messages[0]
	if m.SenderID != "7" || m.Sender.Username != "ann" {
		t.Errorf("unexpected snapshot message: %+v", m)
	}
	if !m.CreatedAt.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected createdAt: %v", m.CreatedAt)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing new-location-message and users-update
// ---------------------------------------------------------------------------

func TestParseServerMessage_NewLocationMessage(t *testing.T) {
	input := []byte(`{"type":"new-location-message","id":"99","content":"hi","senderId":7,
		"createdAt":"2024-05-01T10:00:01Z"}`)

	_, msg, err := ParseServerMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nm, ok := msg.(NewLocationMessageMsg)
	if !ok {
		t.Fatalf("expected NewLocationMessageMsg, got %T", msg)
	}
	if nm.ID != "99" || nm.Content != "hi" || nm.SenderID != "7" {
		t.Errorf("unexpected message: %+v", nm.Message)
	}
}

func TestParseServerMessage_UsersUpdate(t *testing.T) {
	input := []byte(`{"type":"users-update","zoneId":42,"onlineUsers":9}`)

	_, msg, err := ParseServerMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	uu, ok := msg.(UsersUpdateMsg)
	if !ok {
		t.Fatalf("expected UsersUpdateMsg, got %T", msg)
	}
	if uu.ZoneID != "42" || uu.OnlineUsers != 9 {
		t.Errorf("unexpected users-update: %+v", uu)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing an unknown event type returns an error
// ---------------------------------------------------------------------------

func TestParseServerMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"join-location-chat","lat":1,"lng":2}`)

	msgType, msg, err := ParseServerMessage(input)
	if err == nil {
		t.Fatal("expected an error for a client-only type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message, got %v", msg)
	}
	if msgType != TypeJoinLocationChat {
		t.Errorf("expected returned type %q, got %q", TypeJoinLocationChat, msgType)
	}
}

func TestParseServerMessage_BadPayload(t *testing.T) {
	input := []byte(`{"type":"users-update","zoneId":42,"onlineUsers":"many"}`)

	if _, _, err := ParseServerMessage(input); err == nil {
		t.Fatal("expected decode error, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Creating client frames
// ---------------------------------------------------------------------------

func TestNewClientMessage_JoinLocationChat(t *testing.T) {
	data, err := NewClientMessage(TypeJoinLocationChat, JoinLocationChatMsg{
		Lat:    48.137,
		Lng:    11.575,
		UserID: "7",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result["type"] != TypeJoinLocationChat {
		t.Errorf("expected type %q, got %v", TypeJoinLocationChat, result["type"])
	}
	if result["lat"] != 48.137 || result["lng"] != 11.575 {
		t.Errorf("unexpected coordinates: %v", result)
	}
	// Numeric user ids go out as JSON numbers.
	if uid, ok := result["userId"].(float64); !ok || uid != 7 {
		t.Errorf("expected numeric userId 7, got %T %v", result["userId"], result["userId"])
	}
}

func TestNewClientMessage_SendLocationMessage(t *testing.T) {
	data, err := NewClientMessage(TypeSendLocationMessage, SendLocationMessageMsg{
		ZoneID:   "zone-a",
		SenderID: "7",
		Content:  "hello",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result["zoneId"] != "zone-a" {
		t.Errorf("expected string zoneId, got %v", result["zoneId"])
	}
	if result["content"] != "hello" {
		t.Errorf("expected content %q, got %v", "hello", result["content"])
	}
}

// ---------------------------------------------------------------------------
// Test: Envelope and ID edge cases
// ---------------------------------------------------------------------------

func TestEnvelope_MissingType(t *testing.T) {
	input := []byte(`{"data":"no type field"}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for missing type field, got nil")
	}
}

func TestEnvelope_InvalidJSON(t *testing.T) {
	input := []byte(`{invalid json}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

func TestID_Decoding(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  ID
	}{
		{"number", `12`, "12"},
		{"string", `"temp-1700000000000"`, "temp-1700000000000"},
		{"null", `null`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			if err := json.Unmarshal([]byte(tt.input), &id); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != tt.want {
				t.Errorf("expected %q, got %q", tt.want, id)
			}
		})
	}
}

func TestID_EncodingKeepsStrings(t *testing.T) {
	out, err := json.Marshal(ID("temp-17"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `"temp-17"` {
		t.Errorf("expected quoted id, got %s", out)
	}
}
