// Package relay is the room server agents connect to: it validates
// registrations, backfills history and broadcasts messages to a room.
package relay

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"markestedt/clipsync/protocol"
)

const maxNameLength = 64

// History persists room messages
type History interface {
	SaveMessage(ctx context.Context, room string, msg protocol.Message) (string, error)
	RecentMessages(ctx context.Context, room string, limit int) ([]protocol.Message, error)
	PruneRoom(ctx context.Context, room string, keep int) (int64, error)
}

type joinRequest struct {
	client *Client
	reg    protocol.Registration
}

type publishRequest struct {
	client *Client
	msg    protocol.Message
}

// Hub owns rooms and membership. All state is touched only by Run.
type Hub struct {
	history History
	metrics *Metrics
	limit   int
	retain  int
	now     func() time.Time

	clients map[*Client]bool
	rooms   map[string]map[string]*Client

	register   chan *Client
	unregister chan *Client
	join       chan joinRequest
	publish    chan publishRequest
	done       chan struct{}
}

// NewHub creates a hub. limit is the history backfill size, retain the
// number of messages kept per room (0 keeps everything).
func NewHub(history History, metrics *Metrics, limit, retain int) *Hub {
	return &Hub{
		history:    history,
		metrics:    metrics,
		limit:      limit,
		retain:     retain,
		now:        time.Now,
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan joinRequest),
		publish:    make(chan publishRequest),
		done:       make(chan struct{}),
	}
}

// Run processes hub requests until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			h.metrics.Connections.Inc()

		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
			}

		case req := <-h.join:
			h.handleJoin(ctx, req.client, req.reg)

		case req := <-h.publish:
			h.handlePublish(ctx, req.client, req.msg)
		}
	}
}

// drop forgets c and closes its send queue
func (h *Hub) drop(c *Client) {
	h.leave(c)
	delete(h.clients, c)
	close(c.send)
	h.metrics.Connections.Dec()
}

// leave removes c from its room
func (h *Hub) leave(c *Client) {
	if c.room == "" {
		return
	}
	members := h.rooms[c.room]
	if members[c.userID] == c {
		delete(members, c.userID)
	}
	if len(members) == 0 {
		delete(h.rooms, c.room)
	}
	slog.Info("Device left room", "room", c.room, "user", c.userID)
	c.room, c.userID = "", ""
	h.metrics.Rooms.Set(float64(len(h.rooms)))
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, reg protocol.Registration) {
	if !h.clients[c] {
		return
	}

	room := strings.TrimSpace(reg.Room)
	userID := strings.TrimSpace(reg.UserID)
	if room == "" || userID == "" {
		h.reject(c, "room and userId are required")
		return
	}
	if len(room) > maxNameLength || len(userID) > maxNameLength {
		h.reject(c, "room and userId must be at most "+strconv.Itoa(maxNameLength)+" characters")
		return
	}

	h.leave(c)

	// The newest registration of a user id wins; the previous connection is
	// most likely a half-dead socket from before a reconnect
	if prev, ok := h.rooms[room][userID]; ok && prev != c {
		slog.Warn("User id registered again, closing previous connection", "room", room, "user", userID)
		h.send(prev, protocol.EventRegistrationError, protocol.ErrorPayload{Message: "user id registered from another connection"})
		if h.clients[prev] {
			h.drop(prev)
		}
		h.metrics.Registrations.WithLabelValues("replaced").Inc()
	}

	members := h.rooms[room]
	if members == nil {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[userID] = c
	c.room, c.userID = room, userID
	h.metrics.Rooms.Set(float64(len(h.rooms)))
	h.metrics.Registrations.WithLabelValues("ok").Inc()
	slog.Info("Device joined room", "room", room, "user", userID, "remote", c.remote)

	history, err := h.history.RecentMessages(ctx, room, h.limit)
	if err != nil {
		slog.Error("Failed to load history", "room", room, "error", err)
		h.metrics.HistoryErrors.Inc()
		h.send(c, protocol.EventHistoryError, protocol.ErrorPayload{Message: "failed to load history"})
		return
	}
	if history == nil {
		history = []protocol.Message{}
	}
	h.send(c, protocol.EventHistory, history)
}

func (h *Hub) reject(c *Client, reason string) {
	slog.Warn("Registration rejected", "remote", c.remote, "reason", reason)
	h.metrics.Registrations.WithLabelValues("rejected").Inc()
	h.send(c, protocol.EventRegistrationError, protocol.ErrorPayload{Message: reason})
}

func (h *Hub) handlePublish(ctx context.Context, c *Client, msg protocol.Message) {
	if !h.clients[c] {
		return
	}
	if c.room == "" {
		slog.Warn("Message from unregistered connection", "remote", c.remote)
		h.metrics.Dropped.WithLabelValues("unregistered").Inc()
		return
	}
	if err := msg.Validate(); err != nil {
		slog.Warn("Dropping invalid message", "room", c.room, "user", c.userID, "error", err)
		h.metrics.Dropped.WithLabelValues("invalid").Inc()
		return
	}

	msg.OriginID = c.userID
	if msg.SentAt.IsZero() {
		msg.SentAt = h.now().UTC()
	}

	if _, err := h.history.SaveMessage(ctx, c.room, msg); err != nil {
		slog.Error("Failed to save message", "room", c.room, "error", err)
	} else if h.retain > 0 {
		if _, err := h.history.PruneRoom(ctx, c.room, h.retain); err != nil {
			slog.Warn("Failed to prune room", "room", c.room, "error", err)
		}
	}

	frame, err := protocol.Encode(protocol.EventSendMessage, msg)
	if err != nil {
		slog.Error("Failed to encode message", "error", err)
		return
	}
	for _, member := range h.rooms[c.room] {
		h.deliver(member, frame)
	}

	h.metrics.Messages.WithLabelValues(string(msg.Kind), strconv.FormatBool(msg.HasRegister())).Inc()
	slog.Debug("Broadcast message", "room", c.room, "user", c.userID, "type", msg.Kind, "members", len(h.rooms[c.room]))
}

func (h *Hub) send(c *Client, event string, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		slog.Error("Failed to encode frame", "event", event, "error", err)
		return
	}
	h.deliver(c, frame)
}

// deliver queues frame for c. A client that cannot keep up is dropped.
func (h *Hub) deliver(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		slog.Warn("Send queue full, dropping connection", "room", c.room, "user", c.userID)
		h.metrics.Dropped.WithLabelValues("slow_consumer").Inc()
		h.drop(c)
	}
}
