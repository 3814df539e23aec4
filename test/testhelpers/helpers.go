// Package testhelpers provides shared utilities for integration testing the
// duochat server: spinning up a full relay over httptest, dialing WebSocket
// clients, and speaking the JSON envelope protocol.
package testhelpers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"duochat/internal/server"
	"duochat/internal/voicestore"
)

// SharedSecret is the credential every test participant registers with.
const SharedSecret = "test-shared-secret"

// ChatServer bundles the pieces of a running test relay.
type ChatServer struct {
	HTTP *httptest.Server
	Hub  *server.Hub
}

// StartChatServer boots a complete relay (registry, hub, in-memory voice
// store, handlers) on an httptest server. Everything is torn down via
// t.Cleanup.
func StartChatServer(t *testing.T) *ChatServer {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := server.NewConfig(SharedSecret)
	cfg.AllowedOrigins = "*"

	store, err := voicestore.OpenInMemory(log)
	if err != nil {
		t.Fatalf("Failed to open voice store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	registry := server.NewRegistry(cfg.SharedSecret, cfg.MaxParticipants)
	hub := server.NewHub(registry, log)
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(2 * time.Second) })

	gateway := server.NewGateway(hub, store, cfg, log)
	ts := httptest.NewServer(server.SetupRoutes(gateway))
	t.Cleanup(ts.Close)

	return &ChatServer{HTTP: ts, Hub: hub}
}

// WebSocketURL converts the test server's base URL into its ws:// endpoint.
func (cs *ChatServer) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(cs.HTTP.URL, "http") + "/ws"
}

// Connect dials a WebSocket client against the relay. The connection is
// closed via t.Cleanup.
func (cs *ChatServer) Connect(t *testing.T) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", "http://localhost:8080")

	conn, resp, err := dialer.Dial(cs.WebSocketURL(), headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to connect websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEvent writes one envelope frame.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Failed to marshal %s payload: %v", event, err)
	}
	if err := conn.WriteJSON(server.Envelope{Event: event, Data: raw}); err != nil {
		t.Fatalf("Failed to send %s: %v", event, err)
	}
}

// ReadEvent reads the next envelope frame, failing the test on timeout.
func ReadEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) server.Envelope {
	t.Helper()

	env, ok := tryReadEvent(t, conn, timeout)
	if !ok {
		t.Fatal("Timed out waiting for event")
	}
	return env
}

// WaitForEvent reads frames until one with the wanted event name arrives,
// discarding others. It fails the test if the deadline passes first.
func WaitForEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) server.Envelope {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		env, ok := tryReadEvent(t, conn, time.Until(deadline))
		if !ok {
			break
		}
		if env.Event == event {
			return env
		}
	}
	t.Fatalf("Timed out waiting for %s event", event)
	return server.Envelope{}
}

// AssertNoEvent verifies that no frame arrives within the window.
func AssertNoEvent(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	if env, ok := tryReadEvent(t, conn, window); ok {
		t.Fatalf("Expected no event, got %s", env.Event)
	}
}

func tryReadEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) (server.Envelope, bool) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return server.Envelope{}, false
	}

	var env server.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("Failed to decode frame %q: %v", raw, err)
	}
	return env, true
}

// Register submits a registration and returns the ack.
func Register(t *testing.T, conn *websocket.Conn, username, password string) server.RegisterAck {
	t.Helper()

	SendEvent(t, conn, server.EventRegister, server.RegisterRequest{
		Username: username,
		Password: password,
	})

	env := WaitForEvent(t, conn, server.EventRegisterAck, 5*time.Second)
	var ack server.RegisterAck
	if err := json.Unmarshal(env.Data, &ack); err != nil {
		t.Fatalf("Failed to decode register ack: %v", err)
	}
	return ack
}

// MustRegister registers and fails the test unless the relay admits.
func MustRegister(t *testing.T, conn *websocket.Conn, username string) {
	t.Helper()

	ack := Register(t, conn, username, SharedSecret)
	if !ack.Success {
		t.Fatalf("Registration of %s failed: %s", username, ack.Message)
	}
}

// DecodeData unmarshals an envelope payload into out.
func DecodeData(t *testing.T, env server.Envelope, out any) {
	t.Helper()

	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("Failed to decode %s payload: %v", env.Event, err)
	}
}
