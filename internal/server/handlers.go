package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Tyrowin/chathub/internal/models"
	"github.com/samber/lo"
)

const (
	defaultPageSize = 50
	maxPageSize     = 1000
)

// webSocketHandler upgrades the request and hands the connection to the hub,
// which launches its pumps.
func (s *Server) webSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, s.cfg)
	if !s.hub.Register(client) {
		client.closeConnection()
	}
}

// healthHandler reports liveness and registry counts.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Success:     true,
		Status:      "ok",
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Connections: s.hub.ClientCount(),
		Stats:       s.registry.Stats(),
		Timestamp:   time.Now().UTC(),
	})
}

func (s *Server) usersHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, usersResponse{Success: true, Users: s.registry.GetAllUsers()})
}

func (s *Server) roomsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, roomsResponse{Success: true, Rooms: s.registry.GetAllRooms()})
}

// messagesHandler pages through public history: ?room=&limit=&offset=.
func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := intParam(query.Get("limit"), defaultPageSize)
	if err != nil || limit > maxPageSize {
		writeError(w, http.StatusBadRequest, "limit must be an integer between 0 and 1000")
		return
	}
	offset, err := intParam(query.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	room := query.Get("room")
	if room != "" && !s.registry.RoomExists(room) {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	messages := s.registry.GetMessages(room, limit, offset)
	writeJSON(w, http.StatusOK, messagesResponse{Success: true, Messages: messages, Count: len(messages)})
}

// searchHandler matches ?query= against public messages, optionally within ?room=.
func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	needle := query.Get("query")
	if needle == "" {
		writeError(w, http.StatusBadRequest, "query parameter is required")
		return
	}

	messages := lo.Filter(s.registry.SearchMessages(needle, query.Get("room")), func(m models.MessageView, _ int) bool {
		return !m.IsPrivate
	})
	writeJSON(w, http.StatusOK, messagesResponse{Success: true, Messages: messages, Count: len(messages)})
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, strconv.ErrRange
	}
	return value, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Error: message})
}
