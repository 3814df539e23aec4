// Package server defines the JSON wire protocol spoken over the WebSocket
// connection. Every frame is an Envelope whose Data field is decoded
// according to the Event name.
package server

import "encoding/json"

// Event names carried in the envelope. The client-to-server set is
// register and chat-message; everything else is server-to-client.
const (
	EventRegister     = "register"
	EventRegisterAck  = "register-ack"
	EventChatMessage  = "chat-message"
	EventVoiceMessage = "new-voice-message"
	EventUserStatus   = "user-status"
	EventUserList     = "user-list"
)

// Presence states reported in UserStatus events.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Envelope is the single frame format exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// RegisterRequest asks the server to bind this connection to an identity.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterAck answers exactly one RegisterRequest on the same connection.
type RegisterAck struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ChatMessage is rebroadcast verbatim to every admitted session, the
// sender's own included. Timestamp is whatever the sending client chose to
// stamp; the server treats it as opaque.
type ChatMessage struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// VoiceNote announces that a voice payload has been durably stored and can
// be fetched by filename. Timestamp is server time in epoch milliseconds.
type VoiceNote struct {
	Filename  string `json:"filename"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
}

// UserStatus announces a presence change to everyone but the subject.
type UserStatus struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}

// encodeEvent wraps a payload in an Envelope and marshals the frame.
func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
