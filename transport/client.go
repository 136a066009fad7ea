// Package transport keeps one reconnecting WebSocket session to a relay room.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"markestedt/clipsync/protocol"
	"markestedt/clipsync/session"
)

const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = 3 * time.Second

	writeTimeout = 10 * time.Second
	maxFrameSize = 32 << 20
)

// ErrNotConnected is returned by Send and Register while no session is up
var ErrNotConnected = errors.New("not connected")

// Conn is the subset of *websocket.Conn the client uses
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens connections to the relay
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// WebSocketDialer dials with gorilla/websocket
type WebSocketDialer struct {
	Dialer *websocket.Dialer
}

// Dial opens a WebSocket connection
func (d WebSocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxFrameSize)
	return conn, nil
}

// Options tunes reconnection
type Options struct {
	Dialer      Dialer
	MaxAttempts int
	RetryDelay  time.Duration
	EventBuffer int
}

// Client is a reconnecting relay session. Status, room and user id live in
// the shared session.Identity.
type Client struct {
	dialer      Dialer
	identity    *session.Identity
	maxAttempts int
	retryDelay  time.Duration

	events chan Event
	done   chan struct{}

	mu     sync.Mutex
	conn   Conn
	cancel context.CancelFunc
	closed bool

	writeMu sync.Mutex
}

// NewClient creates a disconnected client
func NewClient(identity *session.Identity, opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = WebSocketDialer{}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}

	return &Client{
		dialer:      opts.Dialer,
		identity:    identity,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		events:      make(chan Event, opts.EventBuffer),
		done:        make(chan struct{}),
	}
}

// Events returns the inbound event stream, in arrival order
func (c *Client) Events() <-chan Event {
	return c.events
}

// Status returns the connection status
func (c *Client) Status() session.Status {
	return c.identity.Status()
}

// Connect starts a session to endpoint. It is a no-op while connecting or
// connected.
func (c *Client) Connect(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid endpoint scheme %q", u.Scheme)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client closed")
	}
	switch c.identity.Status() {
	case session.Connecting:
		slog.Warn("Already attempting to connect", "endpoint", endpoint)
		return nil
	case session.Connected:
		slog.Warn("Already connected", "endpoint", endpoint)
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.identity.SetStatus(session.Connecting)

	go c.run(ctx, endpoint)
	return nil
}

// Disconnect ends the session and forgets the room identity
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
}

// Close disconnects and releases the event stream
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.teardownLocked()
	c.closed = true
	close(c.done)
}

func (c *Client) teardownLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.identity.Clear()
	c.identity.SetStatus(session.Disconnected)
}

// Register stores room and user id and announces them when connected.
// Otherwise they are sent on the next successful connect.
func (c *Client) Register(room, userID string) error {
	c.identity.Set(room, userID)
	if c.identity.Status() != session.Connected {
		return nil
	}
	return c.write(protocol.EventRegister, protocol.Registration{Room: room, UserID: userID})
}

// Send emits a message. Nothing is queued while disconnected.
func (c *Client) Send(msg protocol.Message) error {
	if c.identity.Status() != session.Connected {
		return ErrNotConnected
	}
	return c.write(protocol.EventSendMessage, msg)
}

func (c *Client) write(event string, payload any) error {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

// run owns one connect/reconnect cycle until ctx is cancelled or the retry
// budget is spent
func (c *Client) run(ctx context.Context, endpoint string) {
	attempt := 0
	for {
		conn, err := c.dialer.Dial(ctx, endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("Connection error", "endpoint", endpoint, "error", err)
			c.emit(Event{Type: EventConnectError, Reason: err.Error(), Attempt: attempt})

			if !c.retry(ctx, &attempt) {
				return
			}
			continue
		}

		if !c.attach(ctx, conn) {
			conn.Close()
			return
		}
		attempt = 0
		slog.Info("Connected", "endpoint", endpoint)
		c.emit(Event{Type: EventConnected})

		if room, userID, ok := c.identity.Credentials(); ok {
			slog.Info("Emitting register", "room", room, "user", userID)
			if err := c.write(protocol.EventRegister, protocol.Registration{Room: room, UserID: userID}); err != nil {
				slog.Error("Failed to register", "error", err)
			}
		}

		reason := c.readLoop(ctx, conn)
		c.detach(ctx, conn)
		slog.Info("Disconnected from server", "reason", reason)
		c.emit(Event{Type: EventDisconnected, Reason: reason})

		if ctx.Err() != nil {
			return
		}
		c.setStatus(ctx, session.Connecting)
		if !c.retry(ctx, &attempt) {
			return
		}
	}
}

// retry waits before the next dial after a failed dial or a dropped
// session. Both count against the same budget: at most maxAttempts redials
// follow a failure. It reports false once the budget is spent or ctx ends.
func (c *Client) retry(ctx context.Context, attempt *int) bool {
	if *attempt >= c.maxAttempts {
		slog.Error("Reconnection failed", "attempts", *attempt)
		c.setStatus(ctx, session.Disconnected)
		c.emit(Event{Type: EventReconnectFailed, Attempt: *attempt})
		return false
	}
	if !c.wait(ctx) {
		return false
	}
	*attempt++
	slog.Info("Attempting to reconnect", "attempt", *attempt)
	c.emit(Event{Type: EventReconnectAttempt, Attempt: *attempt})
	return true
}

// readLoop delivers inbound frames until the connection drops
func (c *Client) readLoop(ctx context.Context, conn Conn) string {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return "client disconnect"
			}
			return err.Error()
		}

		env, err := protocol.Decode(frame)
		if err != nil {
			slog.Warn("Dropping malformed frame", "error", err)
			continue
		}
		c.dispatch(ctx, env)
	}
}

func (c *Client) dispatch(ctx context.Context, env protocol.Envelope) {
	switch env.Event {
	case protocol.EventSendMessage:
		var msg protocol.Message
		if err := env.Payload(&msg); err != nil {
			slog.Warn("Dropping malformed message", "error", err)
			return
		}
		c.emit(Event{Type: EventMessage, Message: msg})

	case protocol.EventHistory:
		var history []protocol.Message
		if len(env.Data) > 0 {
			if err := env.Payload(&history); err != nil {
				slog.Warn("Dropping malformed history", "error", err)
				c.emit(Event{Type: EventHistoryFailed, Reason: err.Error()})
				return
			}
		}
		c.emit(Event{Type: EventHistory, History: history})

	case protocol.EventHistoryError:
		var p protocol.ErrorPayload
		_ = env.Payload(&p)
		slog.Error("History error", "message", p.Message)
		c.emit(Event{Type: EventHistoryFailed, Reason: p.Message})

	case protocol.EventRegistrationError:
		var p protocol.ErrorPayload
		_ = env.Payload(&p)
		slog.Error("Registration error", "message", p.Message)
		c.emit(Event{Type: EventRegistrationRejected, Reason: p.Message})

		// A rejected identity is fatal for this session
		c.mu.Lock()
		if ctx.Err() == nil {
			c.teardownLocked()
		}
		c.mu.Unlock()

	default:
		slog.Debug("Ignoring unknown event", "event", env.Event)
	}
}

// attach publishes conn as the live connection unless ctx was cancelled
func (c *Client) attach(ctx context.Context, conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	c.conn = conn
	c.identity.SetStatus(session.Connected)
	return true
}

func (c *Client) detach(ctx context.Context, conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
	conn.Close()
	if ctx.Err() == nil {
		c.identity.SetStatus(session.Disconnected)
	}
}

// setStatus writes status only while ctx is the current session
func (c *Client) setStatus(ctx context.Context, s session.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() == nil {
		c.identity.SetStatus(s)
	}
}

func (c *Client) wait(ctx context.Context) bool {
	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Endpoint builds a relay URL from its parts
func Endpoint(scheme, address string, port int, path string) string {
	if scheme == "" {
		scheme = "ws"
	}
	if path == "" {
		path = "/ws"
	}
	host := address
	if port > 0 {
		host = fmt.Sprintf("%s:%d", address, port)
	}
	u := url.URL{Scheme: scheme, Host: host, Path: path}
	return u.String()
}
