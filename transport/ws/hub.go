package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
)

// Event types exchanged after admission
const (
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventTyping         = "typing"
	EventPing           = "ping"
	EventPong           = "pong"
	EventUserLeft       = "user_left"
	EventError          = "error"
)

// Event is the JSON frame for every message on an admitted connection
type Event struct {
	Type      string    `json:"type"`
	RoomID    string    `json:"roomId,omitempty"`
	SenderID  string    `json:"senderId,omitempty"`
	Message   string    `json:"message,omitempty"`
	IsTyping  bool      `json:"isTyping,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Conn is the hub's view of one admitted connection. Outbound events are
// queued on send and drained by the connection's writer.
type Conn struct {
	ID            string
	IdentityID    string
	WalletAddress string

	send      chan Event
	done      chan struct{}
	closeOnce sync.Once

	// guarded by Hub.mu
	rooms map[string]struct{}
}

func newConn(id string, claims *core.SessionClaims, buffer int) *Conn {
	return &Conn{
		ID:            id,
		IdentityID:    claims.IdentityID,
		WalletAddress: claims.WalletAddress,
		send:          make(chan Event, buffer),
		done:          make(chan struct{}),
		rooms:         make(map[string]struct{}),
	}
}

// enqueue never blocks; a full queue drops the event
func (c *Conn) enqueue(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub tracks identity bindings and room membership for admitted connections
type Hub struct {
	mu       sync.Mutex
	bindings map[string]*Conn
	rooms    map[string]map[*Conn]struct{}
	now      func() time.Time
	logger   *slog.Logger
}

// NewHub creates an empty hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		bindings: make(map[string]*Conn),
		rooms:    make(map[string]map[*Conn]struct{}),
		now:      time.Now,
		logger:   logger.With("component", "ws_hub"),
	}
}

// Admit binds the connection's identity to it and joins its personal room.
// A previous binding for the same identity is replaced and returned.
func (h *Hub) Admit(c *Conn) *Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.bindings[c.IdentityID]
	h.bindings[c.IdentityID] = c
	h.join(c, c.IdentityID)
	return prev
}

// Release undoes Admit. The binding is only removed while it still points at
// c, so a stale connection closing late cannot unbind its replacement. Every
// other room c was in is told the user left.
func (h *Hub) Release(c *Conn) {
	type notice struct {
		room    string
		members []*Conn
	}

	h.mu.Lock()
	if h.bindings[c.IdentityID] == c {
		delete(h.bindings, c.IdentityID)
	}
	var notices []notice
	for room := range c.rooms {
		members := h.leave(c, room)
		if room == c.IdentityID || len(members) == 0 {
			continue
		}
		notices = append(notices, notice{room: room, members: members})
	}
	h.mu.Unlock()

	c.close()

	for _, n := range notices {
		ev := Event{Type: EventUserLeft, RoomID: n.room, SenderID: c.IdentityID, Timestamp: h.now().UTC()}
		h.deliver(n.members, ev)
	}
}

// Join adds c to room
func (h *Hub) Join(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.join(c, room)
}

// Leave removes c from room
func (h *Hub) Leave(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(c, room)
}

// Broadcast queues ev for every member of room except skip and returns how
// many connections accepted it
func (h *Hub) Broadcast(room string, ev Event, skip *Conn) int {
	h.mu.Lock()
	members := make([]*Conn, 0, len(h.rooms[room]))
	for m := range h.rooms[room] {
		if m != skip {
			members = append(members, m)
		}
	}
	h.mu.Unlock()

	return h.deliver(members, ev)
}

// Bound returns the connection currently bound to identityID
func (h *Hub) Bound(identityID string) (*Conn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.bindings[identityID]
	return c, ok
}

// Members returns the number of connections in room
func (h *Hub) Members(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// Connections returns the number of bound identities
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.bindings)
}

func (h *Hub) join(c *Conn, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// leave returns the members remaining in room
func (h *Hub) leave(c *Conn, room string) []*Conn {
	delete(c.rooms, room)
	members, ok := h.rooms[room]
	if !ok {
		return nil
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
		return nil
	}
	rest := make([]*Conn, 0, len(members))
	for m := range members {
		rest = append(rest, m)
	}
	return rest
}

func (h *Hub) deliver(members []*Conn, ev Event) int {
	sent := 0
	for _, m := range members {
		if m.enqueue(ev) {
			sent++
			continue
		}
		h.logger.Warn("dropped event", "type", ev.Type, "connection_id", m.ID, "identity_id", m.IdentityID)
	}
	return sent
}
