package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/urlgrab/api"
	"github.com/use-agent/urlgrab/browser"
	"github.com/use-agent/urlgrab/config"
	"github.com/use-agent/urlgrab/logging"
	"github.com/use-agent/urlgrab/runner"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	logger := logging.Init(cfg.Log)
	slog.Info("urlgrab-server starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"driver", cfg.Browser.Driver,
		"maxConcurrent", cfg.Server.MaxConcurrent,
	)
	if cfg.Auth.Enabled && len(cfg.Auth.APIKeys) == 0 {
		slog.Warn("auth enabled but URLGRAB_API_KEYS is empty: the API is open")
	}

	// ── 3. Initialise the extraction service ────────────────────────
	driver, err := browser.New(cfg.Browser)
	if err != nil {
		slog.Error("failed to initialise browser driver", "error", err)
		os.Exit(1)
	}
	svc, err := runner.New(cfg, driver, runner.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialise extraction service", "error", err)
		os.Exit(1)
	}

	// ── 4. Setup router ─────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	router := api.NewRouter(ctx, svc, cfg, time.Now())

	// ── 5. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 6. Graceful shutdown ────────────────────────────────────────
	<-ctx.Done()
	slog.Info("shutdown signal received")

	// In-flight extractions own a browser each; give them the session
	// timeout to finish.
	grace := cfg.Session.Timeout
	if grace <= 0 {
		grace = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}
	slog.Info("urlgrab-server stopped")
}
