// Package server coordinates participant admission, presence tracking, and
// message broadcast for the duochat relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

// admissionRequest carries one register event from a connection's read pump
// into the hub loop. The hub answers exactly once on reply.
type admissionRequest struct {
	client *Client
	req    RegisterRequest
	reply  chan RegisterAck
}

// chatSubmission is a chat message submitted by an admitted connection.
type chatSubmission struct {
	sender *Client
	msg    ChatMessage
}

// Hub owns the Registry and the session table. All admissions, presence
// transitions, and broadcasts are handled one at a time by the Run loop, so
// no two of them ever interleave. The mutex only guards the clients map and
// per-client closed flags against the send paths.
type Hub struct {
	registry *Registry
	log      *slog.Logger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	admissions chan admissionRequest
	chat       chan chatSubmission
	voice      chan VoiceNote

	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub bound to the given registry. The registry instance is
// shared with the voice upload path, which consults it for authorization.
func NewHub(registry *Registry, log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:   registry,
		log:        log,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		admissions: make(chan admissionRequest),
		chat:       make(chan chatSubmission),
		voice:      make(chan VoiceNote),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Registry returns the registry the hub was constructed with.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// AnnounceVoice hands a durably stored voice note to the hub loop for
// broadcast. It returns false when the hub is shutting down. Callers must
// only invoke this after the payload write has been acknowledged.
func (h *Hub) AnnounceVoice(note VoiceNote) bool {
	select {
	case h.voice <- note:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Run is the hub's event loop. It must run in its own goroutine and is the
// only goroutine that mutates session state and fans out messages.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("nil client registration skipped")
				continue
			}
			h.attachClient(client)

		case client := <-h.unregister:
			h.detachClient(client)

		case req := <-h.admissions:
			h.handleAdmission(req)

		case sub := <-h.chat:
			h.handleChat(sub)

		case note := <-h.voice:
			h.handleVoice(note)
		}
	}
}

// attachClient adds a freshly upgraded connection to the session table and
// starts its pumps. The connection is not admitted yet; it receives nothing
// until it registers successfully.
func (h *Hub) attachClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	client.state = stateAuthenticating
	h.clients[client] = true
	total := len(h.clients)
	h.mutex.Unlock()
	h.log.Info("connection attached", "addr", client.addr, "connections", total)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// detachClient tears down a connection. If the connection was admitted, its
// identity is marked offline and the change is announced to everyone else.
func (h *Hub) detachClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	wasAdmitted := client.state == stateAdmitted
	identity := client.identity
	client.state = stateDisconnected
	total := len(h.clients)
	h.mutex.Unlock()

	close(client.send)
	h.log.Info("connection detached", "addr", client.addr, "connections", total)

	if !wasAdmitted {
		return
	}
	h.registry.MarkOffline(identity)
	h.broadcastStatus(identity, StatusOffline, nil)
}

// handleAdmission runs the credential and capacity checks and, on success,
// binds the connection to its identity. The ack is queued on the
// connection's send channel before the roster so the client always sees
// register-ack first.
func (h *Hub) handleAdmission(req admissionRequest) {
	err := h.registry.Register(req.req.Username, req.req.Password)
	if err != nil {
		h.log.Info("registration rejected",
			"addr", req.client.addr, "username", req.req.Username, "reason", err)
		ack := RegisterAck{Success: false, Message: rejectionMessage(err, h.registry.limit)}
		h.sendEvent(req.client, EventRegisterAck, ack)
		req.reply <- ack
		return
	}

	h.mutex.Lock()
	req.client.identity = req.req.Username
	req.client.state = stateAdmitted
	h.mutex.Unlock()
	h.registry.MarkOnline(req.req.Username)
	h.log.Info("participant admitted", "addr", req.client.addr, "username", req.req.Username)

	ack := RegisterAck{Success: true}
	h.sendEvent(req.client, EventRegisterAck, ack)
	h.broadcastStatus(req.req.Username, StatusOnline, req.client)
	h.sendEvent(req.client, EventUserList, h.registry.Roster())
	req.reply <- ack
}

// handleChat rebroadcasts a chat message to every admitted session, the
// sender's own included. The sender field is stamped from the bound
// identity so a connection cannot speak for somebody else.
func (h *Hub) handleChat(sub chatSubmission) {
	h.mutex.RLock()
	admitted := sub.sender.state == stateAdmitted
	identity := sub.sender.identity
	h.mutex.RUnlock()
	if !admitted {
		// Unauthorized submissions are dropped without a reply.
		h.log.Debug("chat from non-admitted connection dropped", "addr", sub.sender.addr)
		return
	}

	sub.msg.Sender = identity
	payload, err := encodeEvent(EventChatMessage, sub.msg)
	if err != nil {
		h.log.Error("encoding chat message", "error", err)
		return
	}
	h.deliver(payload, nil)
}

// handleVoice announces a stored voice note to every admitted session. The
// uploader may have disconnected while the write was in flight; delivery to
// the remaining sessions proceeds regardless.
func (h *Hub) handleVoice(note VoiceNote) {
	payload, err := encodeEvent(EventVoiceMessage, note)
	if err != nil {
		h.log.Error("encoding voice note", "error", err)
		return
	}
	h.deliver(payload, nil)
}

// broadcastStatus announces a presence change to every admitted session
// except the subject's own connection.
func (h *Hub) broadcastStatus(identity, status string, exclude *Client) {
	payload, err := encodeEvent(EventUserStatus, UserStatus{Username: identity, Status: status})
	if err != nil {
		h.log.Error("encoding user status", "error", err)
		return
	}
	h.deliver(payload, exclude)
}

// sendEvent unicasts one event to a single connection.
func (h *Hub) sendEvent(client *Client, event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		h.log.Error("encoding event", "event", event, "error", err)
		return
	}
	if !h.safeSend(client, payload) {
		h.removeFailedClients([]*Client{client})
	}
}

// deliver fans a payload out to every admitted session except the excluded
// one. Sessions whose send buffers are full are evicted.
func (h *Hub) deliver(payload []byte, exclude *Client) {
	targets := h.admittedSnapshot()
	var failed []*Client
	for _, client := range targets {
		if client == exclude {
			continue
		}
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)
}

// admittedSnapshot returns the currently admitted sessions. Connections
// that are still authenticating receive no broadcasts.
func (h *Hub) admittedSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return lo.Filter(lo.Keys(h.clients), func(c *Client, _ int) bool {
		return c.state == stateAdmitted
	})
}

func (h *Hub) safeSend(client *Client, payload []byte) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// removeFailedClients evicts connections whose send buffers overflowed and
// closes their channels outside the lock.
func (h *Hub) removeFailedClients(failed []*Client) {
	if len(failed) == 0 {
		return
	}

	h.mutex.Lock()
	var channels []chan []byte
	for _, client := range failed {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			client.closed = true
			client.state = stateDisconnected
			channels = append(channels, client.send)
			h.log.Warn("connection evicted, send buffer full", "addr", client.addr)
		}
	}
	h.mutex.Unlock()

	for _, ch := range channels {
		close(ch)
	}
}

// shutdownClients tears down every live connection during hub shutdown.
// Closing the send channels releases the write pumps immediately; closing
// the sockets releases the read pumps.
func (h *Hub) shutdownClients() {
	h.mutex.Lock()
	clients := lo.Keys(h.clients)
	for _, client := range clients {
		delete(h.clients, client)
		client.closed = true
		client.state = stateDisconnected
	}
	h.mutex.Unlock()

	for _, client := range clients {
		close(client.send)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn("closing client connection", "addr", client.addr, "error", err)
			}
		}
	}
	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown stops the Run loop, closes all connections, and waits up to
// timeout for the pump goroutines to finish.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.log.Info("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timed out")
		return context.DeadlineExceeded
	}
}
