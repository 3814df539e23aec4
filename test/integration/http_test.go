package integration

import (
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
	"duochat/test/testhelpers"
)

func TestHealthEndpoint(t *testing.T) {
	cs := testhelpers.StartChatServer(t)

	resp, err := http.Get(cs.HTTP.URL + "/healthz")
	if err != nil {
		t.Fatalf("Failed to reach health endpoint: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from health endpoint, got %d", resp.StatusCode)
	}
}

func TestWebSocketEndpointRejectsPost(t *testing.T) {
	cs := testhelpers.StartChatServer(t)

	resp, err := http.Post(cs.HTTP.URL+"/ws", "text/plain", http.NoBody)
	if err != nil {
		t.Fatalf("Failed to POST to websocket endpoint: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for POST to /ws, got %d", resp.StatusCode)
	}
}

func TestVoiceUploadRejectsGet(t *testing.T) {
	cs := testhelpers.StartChatServer(t)

	resp, err := http.Get(cs.HTTP.URL + "/voice/upload?sender=Alice")
	if err != nil {
		t.Fatalf("Failed to GET upload endpoint: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET to /voice/upload, got %d", resp.StatusCode)
	}
}

// TestUpgradeBlockedForDisallowedOrigin verifies the origin allow-list on
// the upgrade path.
func TestUpgradeBlockedForDisallowedOrigin(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := server.NewConfig("secret")
	cfg.AllowedOrigins = "http://allowed.example.com"

	store, err := voicestore.OpenInMemory(log)
	if err != nil {
		t.Fatalf("Failed to open voice store: %v", err)
	}
	defer func() { _ = store.Close() }()

	hub := server.NewHub(server.NewRegistry(cfg.SharedSecret, cfg.MaxParticipants), log)
	go hub.Run()
	defer func() { _ = hub.Shutdown(time.Second) }()

	ts := httptest.NewServer(server.SetupRoutes(server.NewGateway(hub, store, cfg, log)))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", "http://evil.example.com")

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		_ = conn.Close()
		t.Fatal("Expected upgrade to fail for disallowed origin")
	}
}
