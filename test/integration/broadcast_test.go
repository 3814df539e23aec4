package integration

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"duochat/internal/server"
	"duochat/test/testhelpers"
)

// TestChatMessageEcho verifies that a chat message reaches both the peer
// and the sender's own session.
func TestChatMessageEcho(t *testing.T) {
	cs := testhelpers.StartChatServer(t)

	alice := cs.Connect(t)
	bob := cs.Connect(t)
	testhelpers.MustRegister(t, alice, "Alice")
	testhelpers.MustRegister(t, bob, "Bob")

	testhelpers.SendEvent(t, alice, server.EventChatMessage,
		server.ChatMessage{Sender: "Alice", Content: "hi", Timestamp: "10:15"})

	conns := map[string]*websocket.Conn{"Alice": alice, "Bob": bob}
	for name, conn := range conns {
		env := testhelpers.WaitForEvent(t, conn, server.EventChatMessage, 5*time.Second)
		var msg server.ChatMessage
		testhelpers.DecodeData(t, env, &msg)
		if msg.Sender != "Alice" || msg.Content != "hi" {
			t.Errorf("%s received wrong message: %+v", name, msg)
		}
	}
}

// TestPresenceAnnouncedToPeerOnly verifies that Bob's admission is
// announced to Alice but that Bob never sees his own status change.
func TestPresenceAnnouncedToPeerOnly(t *testing.T) {
	cs := testhelpers.StartChatServer(t)

	alice := cs.Connect(t)
	testhelpers.MustRegister(t, alice, "Alice")

	bob := cs.Connect(t)
	testhelpers.MustRegister(t, bob, "Bob")

	env := testhelpers.WaitForEvent(t, alice, server.EventUserStatus, 5*time.Second)
	var status server.UserStatus
	testhelpers.DecodeData(t, env, &status)
	if status.Username != "Bob" || status.Status != server.StatusOnline {
		t.Errorf("Expected Bob online, got %+v", status)
	}

	// Bob's remaining frame is the roster; after that his connection must
	// stay silent, proving he was excluded from his own announcement.
	testhelpers.WaitForEvent(t, bob, server.EventUserList, 5*time.Second)
	testhelpers.AssertNoEvent(t, bob, 300*time.Millisecond)
}

// TestDisconnectAnnouncesOffline verifies the disconnect flow: the peer is
// told the participant went offline.
func TestDisconnectAnnouncesOffline(t *testing.T) {
	cs := testhelpers.StartChatServer(t)

	alice := cs.Connect(t)
	bob := cs.Connect(t)
	testhelpers.MustRegister(t, alice, "Alice")
	testhelpers.MustRegister(t, bob, "Bob")

	// Consume Bob's online announcement on Alice's side first.
	testhelpers.WaitForEvent(t, alice, server.EventUserStatus, 5*time.Second)

	_ = alice.Close()

	env := testhelpers.WaitForEvent(t, bob, server.EventUserStatus, 5*time.Second)
	var status server.UserStatus
	testhelpers.DecodeData(t, env, &status)
	if status.Username != "Alice" || status.Status != server.StatusOffline {
		t.Errorf("Expected Alice offline, got %+v", status)
	}
}

// TestChatBeforeAdmissionIsIgnored verifies that an unauthenticated
// connection cannot get anything broadcast.
func TestChatBeforeAdmissionIsIgnored(t *testing.T) {
	cs := testhelpers.StartChatServer(t)

	alice := cs.Connect(t)
	testhelpers.MustRegister(t, alice, "Alice")

	stranger := cs.Connect(t)
	testhelpers.SendEvent(t, stranger, server.EventChatMessage,
		server.ChatMessage{Sender: "Mallory", Content: "hello?"})

	testhelpers.AssertNoEvent(t, alice, 300*time.Millisecond)
}
