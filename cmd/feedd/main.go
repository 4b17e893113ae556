// Polymarket Feed — the real-time event delivery layer behind the web
// frontend's notification bell and recent-activity lane.
//
// Architecture:
//
//	main.go              — entry point: loads config, starts the service, waits for SIGINT/SIGTERM
//	feed/service.go      — orchestrator: wires stream + gateway + reconcilers, owns the poll loop
//	feed/reconciler.go   — bounded, ordered, deduplicated merge of snapshots and stream pushes
//	feed/notifications.go— per-wallet notifications with unread count and user actions
//	feed/activity.go     — public recent-trades lane with total volume
//	stream/client.go     — channel-multiplexed WebSocket client with auto-reconnect
//	gateway/client.go    — REST client for snapshots and user actions (rate-limited, retried)
//	dedup/               — content-signature cache bridging record-id mismatches across sources
//	health/tracker.go    — success/failure tracking and exponential reconnect backoff
//	store/store.go       — JSON file persistence for dedup signatures (survives restarts)
//	api/                 — local dashboard: snapshot endpoint, user actions, WebSocket mirror
//
// The same logical event reaches the frontend twice — once in a REST
// snapshot and once as a stream push, under different record ids. The feed
// layer's job is to make that invisible: one list, no duplicates, newest
// first, bounded.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"polymarket-feed/internal/api"
	"polymarket-feed/internal/config"
	"polymarket-feed/internal/feed"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("FEED_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	svc, err := feed.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create feed service", "error", err)
		os.Exit(1)
	}

	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(*cfg, svc, svc.Events(), logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	if err := svc.Start(context.Background()); err != nil {
		logger.Error("failed to start feed service", "error", err)
		os.Exit(1)
	}

	logger.Info("polymarket feed started",
		"address", cfg.Feed.UserAddress,
		"ws_url", cfg.API.WSURL,
		"poll_interval", cfg.Feed.PollInterval,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}

	svc.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
