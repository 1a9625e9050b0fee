package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/adapters/metrics"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/ports"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/service"
)

const (
	// DefaultPingInterval keeps mobile connections alive through backgrounding
	DefaultPingInterval = 25 * time.Second

	writeTimeout      = 10 * time.Second
	defaultSendBuffer = 32
)

// Server admits WebSocket connections that present a valid session credential
type Server struct {
	gateway *service.Gateway
	hub     *Hub

	events         ports.EventPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
	pingInterval   time.Duration
	originPatterns []string
	sendBuffer     int
	now            func() time.Time
}

// Option configures a Server
type Option func(*Server)

func WithPingInterval(d time.Duration) Option {
	return func(s *Server) { s.pingInterval = d }
}

// WithOriginPatterns allows cross-origin handshakes from hosts matching patterns
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

func WithEventPublisher(p ports.EventPublisher) Option {
	return func(s *Server) { s.events = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a connection gateway over hub
func NewServer(gateway *service.Gateway, hub *Hub, opts ...Option) *Server {
	s := &Server{
		gateway:      gateway,
		hub:          hub,
		logger:       slog.Default(),
		pingInterval: DefaultPingInterval,
		sendBuffer:   defaultSendBuffer,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "ws")
	return s
}

// ParseOrigins splits a comma separated origin list
func ParseOrigins(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ServeHTTP verifies the handshake credential once, then upgrades and serves
// the connection until either side goes away
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := s.gateway.AuthenticateHandshake(r.URL.Query().Get("token"), r.Header.Get("Authorization"))
	if err != nil {
		s.reject(w, err)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "identity_id", claims.IdentityID, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newConn(uuid.NewString(), claims, s.sendBuffer)
	if prev := s.hub.Admit(c); prev != nil {
		s.logger.Info("replaced connection binding", "identity_id", c.IdentityID, "previous_connection_id", prev.ID)
	}
	s.metrics.ConnectionOpened()
	s.publish(ctx, c, core.ConnectionOpened, "")
	s.logger.Info("connection admitted", "identity_id", c.IdentityID, "connection_id", c.ID)

	go s.writeLoop(ctx, ws, c)
	reason := s.readLoop(ctx, ws, c)
	cancel()

	s.hub.Release(c)
	s.metrics.ConnectionClosed()
	s.publish(context.WithoutCancel(ctx), c, core.ConnectionClosed, reason)
	s.logger.Info("connection closed", "identity_id", c.IdentityID, "connection_id", c.ID, "reason", reason)

	ws.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) reject(w http.ResponseWriter, err error) {
	e := core.AsError(err)
	s.metrics.HandshakeRejected(string(e.Kind))
	s.logger.Info("handshake rejected", "kind", e.Kind)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   e.Kind,
		"message": e.Message,
	})
}

func (s *Server) readLoop(ctx context.Context, ws *websocket.Conn, c *Conn) string {
	for {
		var ev Event
		if err := wsjson.Read(ctx, ws, &ev); err != nil {
			return closeReason(err)
		}
		s.dispatch(c, ev)
	}
}

func (s *Server) writeLoop(ctx context.Context, ws *websocket.Conn, c *Conn) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, ws, ev)
			cancel()
			if err != nil {
				ws.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, s.pingInterval)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				ws.Close(websocket.StatusPolicyViolation, "ping timeout")
				return
			}
		}
	}
}

func (s *Server) dispatch(c *Conn, ev Event) {
	now := s.now().UTC()

	switch ev.Type {
	case EventJoinRoom:
		if ev.RoomID == "" {
			c.enqueue(Event{Type: EventError, Message: "roomId is required", Timestamp: now})
			return
		}
		s.hub.Join(c, ev.RoomID)
		s.logger.Debug("joined room", "identity_id", c.IdentityID, "room", ev.RoomID)
	case EventLeaveRoom:
		if ev.RoomID == "" || ev.RoomID == c.IdentityID {
			return
		}
		s.hub.Leave(c, ev.RoomID)
	case EventSendMessage:
		if ev.RoomID == "" {
			c.enqueue(Event{Type: EventError, Message: "roomId is required", Timestamp: now})
			return
		}
		s.hub.Broadcast(ev.RoomID, Event{
			Type:      EventReceiveMessage,
			RoomID:    ev.RoomID,
			SenderID:  c.IdentityID,
			Message:   ev.Message,
			Timestamp: now,
		}, nil)
	case EventTyping:
		if ev.RoomID == "" {
			return
		}
		s.hub.Broadcast(ev.RoomID, Event{
			Type:      EventTyping,
			RoomID:    ev.RoomID,
			SenderID:  c.IdentityID,
			IsTyping:  ev.IsTyping,
			Timestamp: now,
		}, c)
	case EventPing:
		c.enqueue(Event{Type: EventPong, Timestamp: now})
	default:
		c.enqueue(Event{Type: EventError, Message: fmt.Sprintf("unknown event %q", ev.Type), Timestamp: now})
	}
}

func (s *Server) publish(ctx context.Context, c *Conn, state, reason string) {
	if s.events == nil {
		return
	}
	err := s.events.PublishConnection(ctx, core.ConnectionEvent{
		IdentityID:    c.IdentityID,
		WalletAddress: c.WalletAddress,
		ConnectionID:  c.ID,
		State:         state,
		Reason:        reason,
		At:            s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to publish connection event", "connection_id", c.ID, "state", state, "error", err)
	}
}

func closeReason(err error) string {
	if status := websocket.CloseStatus(err); status != -1 {
		return fmt.Sprintf("close status %d", int(status))
	}
	if errors.Is(err, context.Canceled) {
		return "server shutdown"
	}
	return err.Error()
}
