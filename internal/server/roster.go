// Package server tracks which identities are authorized to participate and
// whether each one is currently connected via the Registry type.
package server

import "sync"

// Registry is the authoritative record of authorized identities and their
// presence. An identity that has registered once stays authorized for the
// lifetime of the process; only its online flag changes afterwards. The set
// never grows past the configured participant limit.
type Registry struct {
	mu     sync.RWMutex
	secret string
	limit  int
	order  []string
	online map[string]bool
}

// NewRegistry creates an empty registry that admits at most limit distinct
// identities presenting the given shared secret.
func NewRegistry(secret string, limit int) *Registry {
	return &Registry{
		secret: secret,
		limit:  limit,
		online: make(map[string]bool, limit),
	}
}

// Register authorizes an identity. The credential is checked first, for
// known and unknown identities alike; capacity is only checked for
// identities not already in the set, which keeps reconnection possible when
// the registry is full. Re-registering a known identity is idempotent.
func (r *Registry) Register(identity, credential string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if credential != r.secret {
		return ErrInvalidCredential
	}
	if _, known := r.online[identity]; known {
		return nil
	}
	if len(r.order) >= r.limit {
		return ErrCapacityExceeded
	}
	r.order = append(r.order, identity)
	r.online[identity] = false
	return nil
}

// Roster returns every identity ever authorized, in insertion order,
// regardless of current presence.
func (r *Registry) Roster() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// IsAuthorized reports whether the identity has successfully registered at
// some point in the process lifetime.
func (r *Registry) IsAuthorized(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, known := r.online[identity]
	return known
}

// IsOnline reports the current presence flag for the identity.
func (r *Registry) IsOnline(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.online[identity]
}

// MarkOnline flips the presence flag for a known identity. Unknown
// identities are ignored.
func (r *Registry) MarkOnline(identity string) {
	r.setPresence(identity, true)
}

// MarkOffline flips the presence flag for a known identity. Unknown
// identities are ignored.
func (r *Registry) MarkOffline(identity string) {
	r.setPresence(identity, false)
}

func (r *Registry) setPresence(identity string, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, known := r.online[identity]; !known {
		return
	}
	r.online[identity] = online
}

// Size returns the number of distinct authorized identities.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
