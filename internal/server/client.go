// Package server manages individual WebSocket connections, handling the
// per-connection admission state machine and the read/write pumps.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// connState is the lifecycle position of a single connection. A
// disconnected connection never re-enters an earlier state; reconnecting
// clients get a fresh Client.
type connState int

const (
	stateConnecting connState = iota
	stateAuthenticating
	stateAdmitted
	stateDisconnected
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Client is one WebSocket connection. Until it registers successfully it
// has no identity and neither receives broadcasts nor may submit messages.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	addr string
	log  *slog.Logger

	// identity, state, and closed are written by the hub loop; the pumps
	// observe them between events.
	identity string
	state    connState
	closed   bool

	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient wraps an upgraded connection. The returned client must be
// handed to the hub's register channel, which starts the pumps.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, cfg *Config, log *slog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		addr:           addr,
		log:            log.With("addr", addr),
		state:          stateConnecting,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
	}
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("setting read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn("setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// handleReadError classifies a read failure and reports whether the read
// loop should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("frame exceeded maximum size", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info("client disconnected", "error", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info("connection closed", "error", err)
	default:
		c.log.Warn("websocket read error", "error", err)
	}
	return true
}

func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.log.Warn("rate limit exceeded, discarding frame",
			"burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// dispatch decodes one inbound frame and routes it by event name. Frames
// that are malformed, unknown, or not permitted in the current state are
// dropped without a reply.
func (c *Client) dispatch(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Warn("invalid frame", "error", err)
		return
	}

	switch env.Event {
	case EventRegister:
		c.handleRegister(env.Data)
	case EventChatMessage:
		c.handleChatMessage(env.Data)
	default:
		c.log.Warn("unknown event dropped", "event", env.Event)
	}
}

// handleRegister forwards the registration to the hub and waits for the
// verdict. The ack frame itself is queued by the hub so that it always
// precedes the roster on the wire.
func (c *Client) handleRegister(data json.RawMessage) {
	var req RegisterRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.log.Warn("invalid register payload", "error", err)
		return
	}
	if req.Username == "" {
		c.log.Warn("register with empty username dropped")
		return
	}

	reply := make(chan RegisterAck, 1)
	select {
	case c.hub.admissions <- admissionRequest{client: c, req: req, reply: reply}:
	case <-c.hub.ctx.Done():
		return
	}
	<-reply
}

// handleChatMessage forwards a chat submission from an admitted
// connection. Submissions from connections that are still authenticating
// are silently ignored.
func (c *Client) handleChatMessage(data json.RawMessage) {
	if !c.isAdmitted() {
		c.log.Debug("chat before admission dropped")
		return
	}

	var msg ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn("invalid chat payload", "error", err)
		return
	}

	select {
	case c.hub.chat <- chatSubmission{sender: c, msg: msg}:
	case <-c.hub.ctx.Done():
	}
}

// isAdmitted reads the connection state under the hub lock; the hub may
// evict this client concurrently.
func (c *Client) isAdmitted() bool {
	c.hub.mutex.RLock()
	defer c.hub.mutex.RUnlock()
	return c.state == stateAdmitted
}

func (c *Client) readPump() {
	defer func() {
		// During hub shutdown nobody receives on unregister anymore.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("closing connection in read pump", "error", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
			continue
		}

		if !c.checkRateLimit() {
			continue
		}

		c.dispatch(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !c.writeFrame(payload, ok) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("closing connection in write pump", "error", err)
	}
}

// writeFrame sends one outbound frame. Each queued payload goes out as its
// own text message so clients can decode frames independently.
func (c *Client) writeFrame(payload []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("setting write deadline", "error", err)
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("writing close message", "error", err)
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Warn("writing frame", "error", err)
		return false
	}
	return true
}

// isExpectedCloseError reports whether an error is part of normal
// connection teardown and not worth logging loudly.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}

func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn("writing ping", "error", err)
		return false
	}
	return true
}
