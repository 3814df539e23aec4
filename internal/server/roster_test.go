package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testSecret = "shared-secret"

func TestRegisterAdmitsUpToLimit(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(testSecret, 2)

	req.NoError(reg.Register("Alice", testSecret))
	req.NoError(reg.Register("Bob", testSecret))
	req.Equal(2, reg.Size())
	req.Equal([]string{"Alice", "Bob"}, reg.Roster())
}

func TestRegisterRejectsThirdIdentity(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(testSecret, 2)

	req.NoError(reg.Register("Alice", testSecret))
	req.NoError(reg.Register("Bob", testSecret))

	err := reg.Register("Carol", testSecret)
	req.ErrorIs(err, ErrCapacityExceeded)
	req.Equal(2, reg.Size())
	req.False(reg.IsAuthorized("Carol"))
}

func TestRegisterRejectsWrongCredential(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(testSecret, 2)

	err := reg.Register("Alice", "wrong")
	req.ErrorIs(err, ErrInvalidCredential)
	req.Equal(0, reg.Size())
}

func TestRegisterCredentialCheckedBeforeCapacity(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(testSecret, 2)

	req.NoError(reg.Register("Alice", testSecret))
	req.NoError(reg.Register("Bob", testSecret))

	// A known identity with a wrong secret is still rejected on the
	// credential, never silently admitted.
	req.ErrorIs(reg.Register("Alice", "wrong"), ErrInvalidCredential)
	// An unknown identity with a wrong secret fails on the credential too.
	req.ErrorIs(reg.Register("Carol", "wrong"), ErrInvalidCredential)
}

func TestReRegistrationIsIdempotentAtCapacity(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(testSecret, 2)

	req.NoError(reg.Register("Alice", testSecret))
	req.NoError(reg.Register("Bob", testSecret))

	// Reconnection must stay possible once the registry is full.
	req.NoError(reg.Register("Alice", testSecret))
	req.NoError(reg.Register("Bob", testSecret))
	req.Equal(2, reg.Size())
	req.Equal([]string{"Alice", "Bob"}, reg.Roster())
}

func TestCapacityInvariantUnderRepeatedRegistrations(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(testSecret, 2)

	names := []string{"Alice", "Bob", "Carol", "Alice", "Dave", "Bob", "Carol"}
	for _, name := range names {
		_ = reg.Register(name, testSecret)
		req.LessOrEqual(reg.Size(), 2)
	}
	req.Equal([]string{"Alice", "Bob"}, reg.Roster())
}

func TestPresenceTransitions(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(testSecret, 2)

	req.NoError(reg.Register("Alice", testSecret))
	req.False(reg.IsOnline("Alice"))

	reg.MarkOnline("Alice")
	req.True(reg.IsOnline("Alice"))

	reg.MarkOffline("Alice")
	req.False(reg.IsOnline("Alice"))

	// Authorization survives going offline.
	req.True(reg.IsAuthorized("Alice"))
	req.Equal([]string{"Alice"}, reg.Roster())
}

func TestPresenceIgnoresUnknownIdentity(t *testing.T) {
	reg := NewRegistry(testSecret, 2)

	// Must not panic and must not create an entry.
	reg.MarkOnline("Ghost")
	reg.MarkOffline("Ghost")

	require.False(t, reg.IsAuthorized("Ghost"))
	require.Equal(t, 0, reg.Size())
}

func TestRosterIsACopy(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(testSecret, 2)

	req.NoError(reg.Register("Alice", testSecret))
	roster := reg.Roster()
	roster[0] = "Mallory"

	req.Equal([]string{"Alice"}, reg.Roster())
}
