// Package server wires the HTTP handlers into a ServeMux.
package server

import "net/http"

// SetupRoutes configures and returns the application's ServeMux: the
// WebSocket endpoint, voice note upload/retrieval, the health check, and
// static serving of the client shell.
func SetupRoutes(g *Gateway) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.WebSocketHandler)
	mux.HandleFunc("/healthz", g.HealthHandler)
	mux.HandleFunc("/voice/upload", g.VoiceUploadHandler)
	mux.HandleFunc("/voice/", g.VoiceDownloadHandler)
	mux.Handle("/", http.FileServer(http.Dir(g.cfg.StaticDir)))
	return mux
}
