package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Tyrowin/chathub/internal/models"
	"github.com/Tyrowin/chathub/internal/storage"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// newQueryServer builds a server over a registry holding two users, three
// public messages and one private message.
func newQueryServer(t *testing.T) *Server {
	t.Helper()
	registry := storage.NewRegistry()
	alice := models.NewUser("alice", "c1")
	bob := models.NewUser("bob", "c2")
	require.NoError(t, registry.AddUser(alice))
	require.NoError(t, registry.AddUser(bob))
	registry.CreateRoom("random", alice.ID)

	registry.AddMessage(models.NewMessage(alice.ID, "alice", "hello general", models.DefaultRoom))
	registry.AddMessage(models.NewMessage(bob.ID, "bob", "second message", models.DefaultRoom))
	registry.AddMessage(models.NewMessage(bob.ID, "bob", "Hello random", "random"))
	registry.AddMessage(models.NewPrivateMessage(alice.ID, "alice", "hello bob, privately", bob.ID))

	return New(DefaultConfig(), logs.GetLoggerFromLevel(slog.LevelError), registry)
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var body T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func messageContents(messages []models.MessageView) []string {
	return lo.Map(messages, func(m models.MessageView, _ int) string { return m.Content })
}

func TestHealthHandler(t *testing.T) {
	s := newQueryServer(t)

	for _, target := range []string{"/", "/api/health"} {
		t.Run(target, func(t *testing.T) {
			req := require.New(t)
			rec := get(t, s, target)

			req.Equal(http.StatusOK, rec.Code)
			req.Equal("application/json", rec.Header().Get("Content-Type"))
			body := decodeBody[healthResponse](t, rec)
			req.True(body.Success)
			req.Equal("ok", body.Status)
			req.Equal(storage.Stats{Users: 2, Rooms: 2, Messages: 4}, body.Stats)
			req.Zero(body.Connections)
		})
	}
}

func TestUsersAndRoomsHandlers(t *testing.T) {
	req := require.New(t)
	s := newQueryServer(t)

	users := decodeBody[usersResponse](t, get(t, s, "/api/users"))
	req.True(users.Success)
	req.Equal([]string{"alice", "bob"}, lo.Map(users.Users, func(u models.UserView, _ int) string { return u.Username }))

	rooms := decodeBody[roomsResponse](t, get(t, s, "/api/rooms"))
	req.Equal([]string{models.DefaultRoom, "random"}, lo.Map(rooms.Rooms, func(r models.RoomView, _ int) string { return r.Name }))
}

func TestMessagesHandler(t *testing.T) {
	s := newQueryServer(t)

	tests := []struct {
		name     string
		target   string
		status   int
		contents []string
	}{
		{name: "all public", target: "/api/messages", status: http.StatusOK,
			contents: []string{"hello general", "second message", "Hello random"}},
		{name: "one room", target: "/api/messages?room=general", status: http.StatusOK,
			contents: []string{"hello general", "second message"}},
		{name: "limit", target: "/api/messages?room=general&limit=1", status: http.StatusOK,
			contents: []string{"second message"}},
		{name: "offset", target: "/api/messages?limit=1&offset=1", status: http.StatusOK,
			contents: []string{"second message"}},
		{name: "bad limit", target: "/api/messages?limit=abc", status: http.StatusBadRequest},
		{name: "negative offset", target: "/api/messages?offset=-1", status: http.StatusBadRequest},
		{name: "limit too large", target: "/api/messages?limit=5000", status: http.StatusBadRequest},
		{name: "unknown room", target: "/api/messages?room=nowhere", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			rec := get(t, s, tt.target)

			req.Equal(tt.status, rec.Code)
			if tt.status != http.StatusOK {
				body := decodeBody[errorResponse](t, rec)
				req.False(body.Success)
				req.NotEmpty(body.Error)
				return
			}
			body := decodeBody[messagesResponse](t, rec)
			req.True(body.Success)
			req.Equal(tt.contents, messageContents(body.Messages))
			req.Equal(len(tt.contents), body.Count)
		})
	}
}

func TestSearchHandler(t *testing.T) {
	req := require.New(t)
	s := newQueryServer(t)

	body := decodeBody[messagesResponse](t, get(t, s, "/api/messages/search?query=HELLO"))
	req.Equal([]string{"hello general", "Hello random"}, messageContents(body.Messages))

	body = decodeBody[messagesResponse](t, get(t, s, "/api/messages/search?query=hello&room=random"))
	req.Equal([]string{"Hello random"}, messageContents(body.Messages))

	rec := get(t, s, "/api/messages/search")
	req.Equal(http.StatusBadRequest, rec.Code)
	req.Equal("query parameter is required", decodeBody[errorResponse](t, rec).Error)
}

func TestRoutes_MethodsAndUnknownPaths(t *testing.T) {
	s := newQueryServer(t)

	tests := []struct {
		method string
		target string
		status int
	}{
		{method: http.MethodPost, target: "/api/users", status: http.StatusMethodNotAllowed},
		{method: http.MethodDelete, target: "/api/messages", status: http.StatusMethodNotAllowed},
		{method: http.MethodPost, target: "/ws", status: http.StatusMethodNotAllowed},
		{method: http.MethodGet, target: "/ws", status: http.StatusBadRequest},
		{method: http.MethodGet, target: "/test", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
			require.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestCreateServer(t *testing.T) {
	req := require.New(t)
	handler := http.NewServeMux()

	srv := CreateServer(":9090", handler)

	req.Equal(":9090", srv.Addr)
	req.Equal(handler, srv.Handler)
	req.NotZero(srv.ReadTimeout)
	req.NotZero(srv.WriteTimeout)
	req.NotZero(srv.IdleTimeout)
}
