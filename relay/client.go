package relay

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"markestedt/clipsync/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 32 << 20
	sendQueueSize  = 256
)

// Client is one agent connection. room and userID belong to the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	remote string

	room   string
	userID string
}

func newClient(hub *Hub, conn *websocket.Conn, remote string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		remote: remote,
	}
}

// readPump forwards inbound frames to the hub until the connection fails
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket read error", "remote", c.remote, "error", err)
			}
			return
		}
		// Any frame proves the peer is alive
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		env, err := protocol.Decode(frame)
		if err != nil {
			slog.Warn("Dropping malformed frame", "remote", c.remote, "error", err)
			continue
		}

		switch env.Event {
		case protocol.EventRegister:
			var reg protocol.Registration
			if err := env.Payload(&reg); err != nil {
				slog.Warn("Malformed register payload", "remote", c.remote, "error", err)
			}
			// An unreadable payload is rejected like an empty one
			if !c.submitJoin(reg) {
				return
			}

		case protocol.EventSendMessage:
			var msg protocol.Message
			if err := env.Payload(&msg); err != nil {
				slog.Warn("Dropping malformed message", "remote", c.remote, "error", err)
				continue
			}
			if !c.submitPublish(msg) {
				return
			}

		default:
			slog.Debug("Ignoring unknown event", "remote", c.remote, "event", env.Event)
		}
	}
}

func (c *Client) submitJoin(reg protocol.Registration) bool {
	select {
	case c.hub.join <- joinRequest{client: c, reg: reg}:
		return true
	case <-c.hub.done:
		return false
	}
}

func (c *Client) submitPublish(msg protocol.Message) bool {
	select {
	case c.hub.publish <- publishRequest{client: c, msg: msg}:
		return true
	case <-c.hub.done:
		return false
	}
}

// writePump drains the send queue and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the queue
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
