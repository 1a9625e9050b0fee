package ws

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/adapters/metrics"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/adapters/tokenizer"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/ports"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/service"
)

type connectionRecorder struct {
	mu     sync.Mutex
	events []core.ConnectionEvent
}

func (r *connectionRecorder) PublishLogin(context.Context, *core.Identity) error { return nil }

func (r *connectionRecorder) PublishConnection(_ context.Context, ev core.ConnectionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *connectionRecorder) States() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.State)
	}
	return out
}

type wsFixture struct {
	url     string
	hub     *Hub
	tokens  ports.Tokenizer
	metrics *metrics.Metrics
	events  *connectionRecorder
}

func newFixture(t *testing.T) *wsFixture {
	t.Helper()
	tokens := tokenizer.NewJWTTokenizer([]byte("test-secret"), "test-issuer")
	hub := NewHub(nil)
	m := metrics.New()
	events := &connectionRecorder{}

	srv := httptest.NewServer(NewServer(service.NewGateway(tokens), hub,
		WithPingInterval(time.Minute),
		WithMetrics(m),
		WithEventPublisher(events),
	))
	t.Cleanup(srv.Close)

	return &wsFixture{
		url:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		hub:     hub,
		tokens:  tokens,
		metrics: m,
		events:  events,
	}
}

func (f *wsFixture) token(t *testing.T, identityID string, ttl time.Duration) string {
	t.Helper()
	token, err := f.tokens.Mint(&core.SessionClaims{
		IdentityID:    identityID,
		WalletAddress: "0x52908400098527886e0f7030069857d2e4169ee7",
	}, ttl)
	require.NoError(t, err)
	return token
}

func (f *wsFixture) dial(t *testing.T, identityID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, f.url+"?token="+f.token(t, identityID, time.Hour), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	require.Eventually(t, func() bool {
		_, ok := f.hub.Bound(identityID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, ev Event) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, ev))
}

func read(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ev Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	return ev
}

func TestHandshake_Rejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		query string
		kind  core.Kind
	}{
		{"no token", "", core.KindNoTokenProvided},
		{"garbage", "?token=garbage", core.KindInvalidToken},
		{"expired", "?token=" + f.token(t, "alice", -time.Hour), core.KindTokenExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_, resp, err := websocket.Dial(ctx, f.url+tt.query, nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, string(tt.kind), body["error"])
		})
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HandshakeRejects.WithLabelValues(string(core.KindTokenExpired))))
	assert.Equal(t, 0, f.hub.Connections())
}

func TestHandshake_AuthorizationHeader(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+f.token(t, "alice", time.Hour))
	conn, _, err := websocket.Dial(ctx, f.url, &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	send(t, conn, Event{Type: EventPing})
	assert.Equal(t, EventPong, read(t, conn).Type)
}

func TestConnection_MessagesAndRooms(t *testing.T) {
	f := newFixture(t)
	alice := f.dial(t, "alice")
	bob := f.dial(t, "bob")

	send(t, alice, Event{Type: EventJoinRoom, RoomID: "event-1"})
	send(t, bob, Event{Type: EventJoinRoom, RoomID: "event-1"})
	require.Eventually(t, func() bool { return f.hub.Members("event-1") == 2 }, 2*time.Second, 10*time.Millisecond)

	send(t, alice, Event{Type: EventSendMessage, RoomID: "event-1", Message: "doors open at 7"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		ev := read(t, conn)
		assert.Equal(t, EventReceiveMessage, ev.Type)
		assert.Equal(t, "alice", ev.SenderID)
		assert.Equal(t, "doors open at 7", ev.Message)
		assert.False(t, ev.Timestamp.IsZero())
	}

	send(t, bob, Event{Type: EventTyping, RoomID: "event-1", IsTyping: true})
	ev := read(t, alice)
	assert.Equal(t, EventTyping, ev.Type)
	assert.Equal(t, "bob", ev.SenderID)
	assert.True(t, ev.IsTyping)

	// Personal rooms address a user directly
	send(t, alice, Event{Type: EventSendMessage, RoomID: "bob", Message: "hi bob"})
	ev = read(t, bob)
	assert.Equal(t, "hi bob", ev.Message)

	send(t, bob, Event{Type: "dance"})
	assert.Equal(t, EventError, read(t, bob).Type)
}

func TestConnection_DisconnectNotifiesRooms(t *testing.T) {
	f := newFixture(t)
	alice := f.dial(t, "alice")
	bob := f.dial(t, "bob")

	send(t, alice, Event{Type: EventJoinRoom, RoomID: "event-1"})
	send(t, bob, Event{Type: EventJoinRoom, RoomID: "event-1"})
	require.Eventually(t, func() bool { return f.hub.Members("event-1") == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, alice.Close(websocket.StatusNormalClosure, "bye"))

	ev := read(t, bob)
	assert.Equal(t, EventUserLeft, ev.Type)
	assert.Equal(t, "event-1", ev.RoomID)
	assert.Equal(t, "alice", ev.SenderID)

	require.Eventually(t, func() bool {
		_, ok := f.hub.Bound("alice")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		states := f.events.States()
		opened, closed := 0, 0
		for _, s := range states {
			switch s {
			case core.ConnectionOpened:
				opened++
			case core.ConnectionClosed:
				closed++
			}
		}
		return opened == 2 && closed == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActiveConnections))
}

func TestConnection_ReconnectKeepsNewestBinding(t *testing.T) {
	f := newFixture(t)
	first := f.dial(t, "alice")
	firstBound, _ := f.hub.Bound("alice")

	second := f.dial(t, "alice")
	require.Eventually(t, func() bool {
		c, _ := f.hub.Bound("alice")
		return c != firstBound
	}, 2*time.Second, 10*time.Millisecond)
	secondBound, _ := f.hub.Bound("alice")

	require.NoError(t, first.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool { return f.hub.Members("alice") == 1 }, 2*time.Second, 10*time.Millisecond)

	bound, ok := f.hub.Bound("alice")
	require.True(t, ok)
	assert.Same(t, secondBound, bound)

	send(t, second, Event{Type: EventPing})
	assert.Equal(t, EventPong, read(t, second).Type)
}

func TestParseOrigins(t *testing.T) {
	assert.Equal(t, []string{"app.example.com", "*.example.org"}, ParseOrigins(" app.example.com, ,*.example.org "))
	assert.Nil(t, ParseOrigins(""))
}
