package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"polymarket-feed/internal/config"
	"polymarket-feed/internal/feed"
)

// Server runs the HTTP/WebSocket API for the feed dashboard.
type Server struct {
	cfg      config.DashboardConfig
	provider FeedStateProvider
	events   <-chan feed.Event
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates the dashboard server. events is the feed service's
// delta stream; every accepted delta is mirrored to connected clients.
func NewServer(
	cfg config.Config,
	provider FeedStateProvider,
	events <-chan feed.Event,
	logger *slog.Logger,
) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(provider, cfg, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.HandleFunc("GET /api/feed", handlers.HandleSnapshot)
	mux.HandleFunc("POST /api/notifications/{id}/read", handlers.HandleMarkRead)
	mux.HandleFunc("POST /api/notifications/read-all", handlers.HandleMarkAllRead)
	mux.HandleFunc("DELETE /api/notifications/{id}", handlers.HandleDelete)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)

	// Serve static files (web dashboard)
	mux.Handle("/", http.FileServer(http.Dir("web")))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Dashboard.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg.Dashboard,
		provider: provider,
		events:   events,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start runs the hub, the event mirror, and the HTTP listener. Blocks
// until the server stops.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.mirrorEvents()

	s.logger.Info("dashboard server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping dashboard server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// mirrorEvents forwards accepted feed deltas to connected clients until
// the feed service closes its event channel.
func (s *Server) mirrorEvents() {
	if s.events == nil {
		return
	}
	for ev := range s.events {
		s.hub.BroadcastEvent(newDashboardEvent(ev))
	}
}
