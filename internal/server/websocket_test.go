package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/chathub/internal/auth"
	"github.com/Tyrowin/chathub/internal/models"
	"github.com/Tyrowin/chathub/internal/router"
	"github.com/Tyrowin/chathub/internal/storage"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const testOrigin = "http://chat.example.test"

type testServer struct {
	*Server
	ts    *httptest.Server
	wsURL string
}

func startTestServer(t *testing.T, customize func(cfg *Config), opts ...router.Option) *testServer {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RawAllowedOrigins = testOrigin
	if customize != nil {
		customize(&cfg)
	}

	s := New(cfg, logs.GetLoggerFromLevel(slog.LevelError), storage.NewRegistry(), opts...)
	s.StartHub()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Hub().Shutdown(ctx)
		ts.Close()
	})
	return &testServer{Server: s, ts: ts, wsURL: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"}
}

func newOriginHeader(origin string) http.Header {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return header
}

func dial(t *testing.T, s *testServer) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(s.wsURL, newOriginHeader(testOrigin))
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event router.InboundEvent, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

// readFrame reads one frame and requires it to hold exactly one envelope.
func readFrame(t *testing.T, conn *websocket.Conn) router.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var envelope router.Envelope
	require.NoError(t, json.Unmarshal(raw, &envelope), "frame %q", raw)
	return envelope
}

// readEvent skips frames until event arrives and returns its data.
func readEvent(t *testing.T, conn *websocket.Conn, event router.OutboundEvent) json.RawMessage {
	t.Helper()
	for {
		envelope := readFrame(t, conn)
		if envelope.Event == string(event) {
			return envelope.Data
		}
	}
}

func decodeData[T any](t *testing.T, data json.RawMessage) T {
	t.Helper()
	var payload T
	require.NoError(t, json.Unmarshal(data, &payload))
	return payload
}

func joinAs(t *testing.T, conn *websocket.Conn, username string) router.AuthenticatedPayload {
	t.Helper()
	sendEvent(t, conn, router.EventJoin, map[string]any{"username": username})
	return decodeData[router.AuthenticatedPayload](t, readEvent(t, conn, router.EventAuthenticated))
}

func TestWebSocket_JoinSendsOneEnvelopePerFrame(t *testing.T) {
	req := require.New(t)
	s := startTestServer(t, nil)
	conn := dial(t, s)

	// When
	sendEvent(t, conn, router.EventJoin, map[string]any{"username": "alice"})

	// Then
	var events []string
	for range 5 {
		events = append(events, readFrame(t, conn).Event)
	}
	req.Equal([]string{
		string(router.EventAuthenticated),
		string(router.EventUserList),
		string(router.EventUserJoined),
		string(router.EventRoomList),
		string(router.EventMessageHistory),
	}, events)
}

func TestWebSocket_RoomMessageReachesEveryMember(t *testing.T) {
	req := require.New(t)
	s := startTestServer(t, nil)
	alice := dial(t, s)
	bob := dial(t, s)
	joinAs(t, alice, "alice")
	joinAs(t, bob, "bob")

	// When
	sendEvent(t, alice, router.EventSendMessage, map[string]any{"content": "hello everyone"})

	// Then
	for _, conn := range []*websocket.Conn{alice, bob} {
		message := decodeData[models.MessageView](t, readEvent(t, conn, router.EventReceiveMessage))
		req.Equal("hello everyone", message.Content)
		req.Equal("alice", message.SenderName)
	}
	notification := decodeData[router.NotificationPayload](t, readEvent(t, bob, router.EventNotification))
	req.Equal("alice", notification.From)
}

func TestWebSocket_PrivateMessageSkipsBystanders(t *testing.T) {
	req := require.New(t)
	s := startTestServer(t, nil)
	alice := dial(t, s)
	bob := dial(t, s)
	carol := dial(t, s)
	joinAs(t, alice, "alice")
	bobAuth := joinAs(t, bob, "bob")
	joinAs(t, carol, "carol")

	sendEvent(t, alice, router.EventPrivateMessage, map[string]any{"recipientId": bobAuth.UserID, "content": "psst"})
	message := decodeData[models.MessageView](t, readEvent(t, bob, router.EventReceivePrivate))
	req.Equal("psst", message.Content)
	req.True(message.IsPrivate)

	// carol's next frame is her own search result, not the private message.
	sendEvent(t, carol, router.EventSearch, map[string]any{"query": "psst"})
	for {
		envelope := readFrame(t, carol)
		req.NotEqual(string(router.EventReceivePrivate), envelope.Event)
		if envelope.Event == string(router.EventSearchResults) {
			req.Empty(decodeData[[]models.MessageView](t, envelope.Data))
			break
		}
	}
}

func TestWebSocket_SwitchRoomMovesGroupMembership(t *testing.T) {
	req := require.New(t)
	s := startTestServer(t, nil)
	conn := dial(t, s)
	self := joinAs(t, conn, "alice")

	sendEvent(t, conn, router.EventSwitchRoom, map[string]any{"roomName": "random"})
	joined := decodeData[router.RoomJoinedPayload](t, readEvent(t, conn, router.EventRoomJoined))

	req.Equal("random", joined.Room)
	req.Equal([]string{self.ConnectionID}, s.Hub().GroupMembers("random"))
	req.Empty(s.Hub().GroupMembers(models.DefaultRoom))
}

func TestWebSocket_DisconnectNotifiesOthers(t *testing.T) {
	req := require.New(t)
	s := startTestServer(t, nil)
	alice := dial(t, s)
	bob := dial(t, s)
	joinAs(t, alice, "alice")
	joinAs(t, bob, "bob")

	// When
	req.NoError(bob.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = bob.Close()

	// Then
	left := decodeData[router.PresencePayload](t, readEvent(t, alice, router.EventUserLeft))
	req.Equal("bob", left.Username)
	req.Eventually(func() bool {
		return s.registry.Stats().Users == 1 && s.Hub().ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_RejectsDisallowedOrigins(t *testing.T) {
	s := startTestServer(t, nil)

	for _, origin := range []string{"http://evil.example.test", "", "not a url"} {
		t.Run(origin, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(s.wsURL, newOriginHeader(origin))
			if conn != nil {
				_ = conn.Close()
			}
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.Equal(t, http.StatusForbidden, resp.StatusCode)
			_ = resp.Body.Close()
		})
	}
}

func TestWebSocket_OversizedFrameClosesConnection(t *testing.T) {
	s := startTestServer(t, func(cfg *Config) { cfg.MaxMessageSize = 512 })
	conn := dial(t, s)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 2048))))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestWebSocket_RateLimiting(t *testing.T) {
	req := require.New(t)
	s := startTestServer(t, func(cfg *Config) {
		cfg.RateLimitBurst = 2
		cfg.RateLimitRefillInterval = time.Minute
	})
	conn := dial(t, s)
	joinAs(t, conn, "alice")

	sendEvent(t, conn, router.EventFetchHistory, nil)
	readEvent(t, conn, router.EventMessageHistory)

	// When
	sendEvent(t, conn, router.EventFetchHistory, nil)

	// Then
	errPayload := decodeData[router.ErrorPayload](t, readEvent(t, conn, router.EventError))
	req.Equal(router.CodeValidation, errPayload.Code)
	req.Equal("rate limit exceeded", errPayload.Message)
}

func TestWebSocket_JoinWithJWT(t *testing.T) {
	req := require.New(t)
	authenticator := auth.NewJWTAuthenticator("test-secret")
	s := startTestServer(t, nil, router.WithAuthenticator(authenticator))
	conn := dial(t, s)

	sendEvent(t, conn, router.EventJoin, map[string]any{"username": "alice"})
	errPayload := decodeData[router.ErrorPayload](t, readEvent(t, conn, router.EventError))
	req.Equal(router.CodeValidation, errPayload.Code)

	token, err := authenticator.IssueToken("alice", time.Minute)
	req.NoError(err)
	sendEvent(t, conn, router.EventJoin, map[string]any{"username": "alice", "token": token})
	authenticated := decodeData[router.AuthenticatedPayload](t, readEvent(t, conn, router.EventAuthenticated))
	req.Equal("alice", authenticated.Username)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	req := require.New(t)
	s := startTestServer(t, nil)
	conn := dial(t, s)
	joinAs(t, conn, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req.NoError(s.Shutdown(ctx))

	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	req.False(s.Hub().Register(&Client{id: "late"}))
}

func TestHub_SafeSendReportsFullQueue(t *testing.T) {
	req := require.New(t)
	hub := NewHub(logs.GetLoggerFromLevel(slog.LevelError))
	client := &Client{id: "c1", send: make(chan []byte, 1), hub: hub}
	hub.clients[client.id] = client

	req.True(hub.safeSend(client, []byte("first")))
	req.False(hub.safeSend(client, []byte("second")))

	// Unregistered clients are skipped, not reported as slow.
	req.True(hub.safeSend(&Client{id: "ghost", send: make(chan []byte)}, []byte("x")))
}

func TestHub_GroupsIgnoreUnknownConnections(t *testing.T) {
	req := require.New(t)
	hub := NewHub(logs.GetLoggerFromLevel(slog.LevelError))
	hub.clients["c1"] = &Client{id: "c1", send: make(chan []byte, 4), hub: hub}

	hub.JoinGroup("c1", "general")
	hub.JoinGroup("ghost", "general")
	req.Equal([]string{"c1"}, hub.GroupMembers("general"))

	hub.SendToGroup("general", router.EventTypingUsers, router.TypingPayload{Room: "general"}, "")
	frame := <-hub.clients["c1"].send
	req.JSONEq(`{"event":"typing_users","data":{"room":"general","users":null}}`, string(frame))

	hub.LeaveGroup("c1", "general")
	req.Empty(hub.GroupMembers("general"))
}
