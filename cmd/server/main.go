package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/venuewatch/venuewatch/internal/agent"
	"github.com/venuewatch/venuewatch/internal/analysis"
	"github.com/venuewatch/venuewatch/internal/config"
	"github.com/venuewatch/venuewatch/internal/dispatch"
	"github.com/venuewatch/venuewatch/internal/gemini"
	"github.com/venuewatch/venuewatch/internal/pipeline"
	"github.com/venuewatch/venuewatch/internal/server"
	"github.com/venuewatch/venuewatch/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("venuewatch starting",
		"port", cfg.Port,
		"dispatch_topic", cfg.DispatchTopic,
		"gemini_model", cfg.GeminiModel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	units := analysis.NewUnitSet(cfg.DispatchUnits...)

	var transport dispatch.Transport
	if cfg.ProjectID != "" {
		t, err := dispatch.NewPubSubTransport(ctx, cfg.ProjectID, cfg.DispatchTopic)
		if err != nil {
			slog.Error("failed to init pubsub transport", "error", err)
			os.Exit(1)
		}
		defer t.Close()
		transport = t
		slog.Info("pubsub transport ready", "topic", t.TopicPath())
	} else {
		transport = dispatch.NewLogTransport(cfg.DispatchTopic)
		slog.Warn("GCP_PROJECT_ID not set, dispatches go to the log only")
	}

	publisher := dispatch.NewPublisher(transport)
	policy := dispatch.DefaultRetryPolicy()
	policy.PerAttemptTimeout = cfg.PublishTimeout

	var narrator agent.Narrator
	if cfg.GeminiAPIKey != "" {
		g, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			slog.Error("failed to init gemini client", "error", err)
			os.Exit(1)
		}
		defer g.Close()
		narrator = g
	} else {
		narrator = agent.StaticNarrator{}
		slog.Warn("GEMINI_API_KEY not set, reports use the static narrator")
	}

	events := store.New()

	router, err := agent.NewRouter(
		&agent.DispatchPersona{Publisher: publisher, Units: units, Policy: policy},
		&agent.QueryPersona{Store: events},
		&agent.ReportPersona{Store: events, Narrator: narrator},
	)
	if err != nil {
		slog.Error("failed to build agent router", "error", err)
		os.Exit(1)
	}

	coordinator := pipeline.New(events, publisher, units, policy)
	srv := server.New(coordinator, events, router)

	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     srv.Handler(),
		ReadTimeout: 30 * time.Second,
	}

	go func() {
		slog.Info("venuewatch ready", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	slog.Info("venuewatch stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
