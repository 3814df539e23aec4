// Package server defines the sentinel errors shared by the registry, the
// gateway, and the voice upload path.
package server

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredential is returned when a registration request does not
	// carry the shared secret. The client may retry on the same connection.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrCapacityExceeded is returned when the registry already holds the
	// maximum number of distinct identities and the requested one is not
	// among them.
	ErrCapacityExceeded = errors.New("chat is full")
)

// rejectionMessage maps a registration error to the text sent back to the
// connecting client.
func rejectionMessage(err error, limit int) string {
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		return fmt.Sprintf("Chat is full (max %d users)", limit)
	case errors.Is(err, ErrInvalidCredential):
		return "Incorrect password"
	default:
		return "Registration failed"
	}
}
