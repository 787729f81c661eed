package server

import "net/http"

// routes builds the ServeMux: the WebSocket endpoint, health checks and the
// read-only query API.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.healthHandler)
	mux.HandleFunc("GET /api/health", s.healthHandler)
	mux.HandleFunc("GET /ws", s.webSocketHandler)
	mux.HandleFunc("GET /api/users", s.usersHandler)
	mux.HandleFunc("GET /api/rooms", s.roomsHandler)
	mux.HandleFunc("GET /api/messages", s.messagesHandler)
	mux.HandleFunc("GET /api/messages/search", s.searchHandler)
	return mux
}
