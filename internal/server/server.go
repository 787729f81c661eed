package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Tyrowin/chathub/internal/router"
	"github.com/Tyrowin/chathub/internal/storage"
	"github.com/gorilla/websocket"
)

// Server ties the HTTP surface, the hub and the event router to one registry.
type Server struct {
	cfg      Config
	log      *slog.Logger
	registry *storage.Registry
	hub      *Hub
	router   *router.Router
	upgrader websocket.Upgrader
	http     *http.Server
	started  time.Time
}

// New wires a server around registry. Router options supply the
// authenticator and content filter.
func New(cfg Config, log *slog.Logger, registry *storage.Registry, opts ...router.Option) *Server {
	cfg = cfg.Sanitize()
	hub := NewHub(log)
	eventRouter := router.New(log, registry, hub, opts...)
	hub.SetHandler(eventRouter)

	s := &Server{
		cfg:      cfg,
		log:      log,
		registry: registry,
		hub:      hub,
		router:   eventRouter,
		started:  time.Now(),
	}
	origins := newOriginPolicy(cfg.AllowedOrigins(), log)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.checkOrigin,
	}
	s.http = CreateServer(cfg.Port, s.routes())
	return s
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Handler exposes the routes, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) Hub() *Hub {
	return s.hub
}

// StartHub launches the hub loop. Call it before serving.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.log.Info("Hub started and ready to manage WebSocket connections")
}

// ListenAndServe blocks until the HTTP server stops. A graceful Shutdown is
// not reported as an error.
func (s *Server) ListenAndServe() error {
	s.log.Info("Server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then closes every connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")
	httpErr := s.http.Shutdown(ctx)
	if httpErr != nil {
		s.log.Error("HTTP server shutdown error", "error", httpErr)
	}
	return errors.Join(httpErr, s.hub.Shutdown(ctx))
}
