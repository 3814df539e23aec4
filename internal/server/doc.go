// Package server implements the duochat relay: a WebSocket coordinator for
// a private two-person chat with shared-secret admission, presence
// tracking, and voice-note announcements.
//
// The implementation is organized into specialized files for the registry,
// the hub, clients, configuration, routing, and HTTP handlers to keep the
// codebase maintainable and testable as the project grows.
package server
