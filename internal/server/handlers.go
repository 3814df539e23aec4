// Package server exposes the HTTP surface: WebSocket upgrades, voice note
// upload/retrieval, and the health check.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"duochat/internal/voicestore"
)

// maxVoiceUploadBytes caps a single voice note payload.
const maxVoiceUploadBytes = 10 << 20

// Gateway binds the HTTP handlers to the hub, the voice store, and the
// configuration they serve.
type Gateway struct {
	hub      *Hub
	store    *voicestore.Store
	cfg      *Config
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewGateway wires the handlers. The origin allow-list from the
// configuration is compiled once into the upgrader's CheckOrigin hook.
func NewGateway(hub *Hub, store *voicestore.Store, cfg *Config, log *slog.Logger) *Gateway {
	policy := newOriginPolicy(cfg.Origins(), log)
	return &Gateway{
		hub:   hub,
		store: store,
		cfg:   cfg,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.check,
		},
	}
}

// WebSocketHandler upgrades the connection and attaches it to the hub. The
// connection starts unauthenticated; admission happens over the socket via
// a register event.
func (g *Gateway) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, g.hub, r.RemoteAddr, g.cfg, g.log)

	// The hub launches the pump goroutines once it has the client.
	g.hub.register <- client
}

// HealthHandler reports liveness.
func (g *Gateway) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, "duochat server is running!")
}

// VoiceUploadHandler accepts a raw audio payload, writes it durably, and
// only then lets the hub announce it. The sender must name a currently
// authorized identity; a failed write produces an error reply and no
// broadcast.
func (g *Gateway) VoiceUploadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sender := r.URL.Query().Get("sender")
	if sender == "" || !g.hub.Registry().IsAuthorized(sender) {
		http.Error(w, "Unknown sender", http.StatusForbidden)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxVoiceUploadBytes))
	if err != nil {
		g.log.Warn("reading voice upload", "sender", sender, "error", err)
		http.Error(w, "Error reading voice message", http.StatusBadRequest)
		return
	}

	filename, err := g.store.Save(sender, payload)
	switch {
	case err == nil:
	case errors.Is(err, voicestore.ErrEmptyPayload):
		http.Error(w, "Empty voice message", http.StatusBadRequest)
		return
	default:
		g.log.Error("saving voice message", "sender", sender, "error", err)
		http.Error(w, "Error saving voice message", http.StatusInternalServerError)
		return
	}

	g.hub.AnnounceVoice(VoiceNote{
		Filename:  filename,
		Sender:    sender,
		Timestamp: time.Now().UnixMilli(),
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"filename": filename})
}

// VoiceDownloadHandler serves a previously stored voice note by filename.
func (g *Gateway) VoiceDownloadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filename := strings.TrimPrefix(r.URL.Path, "/voice/")
	if filename == "" || strings.Contains(filename, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	payload, contentType, err := g.store.Load(filename)
	if err != nil {
		if errors.Is(err, voicestore.ErrNotFound) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		g.log.Error("loading voice message", "filename", filename, "error", err)
		http.Error(w, "Error loading voice message", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(payload)
}
