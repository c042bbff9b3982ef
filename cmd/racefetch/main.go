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

	"github.com/use-agent/racefetch/api"
	"github.com/use-agent/racefetch/api/handler"
	"github.com/use-agent/racefetch/app"
	"github.com/use-agent/racefetch/cleaner"
	"github.com/use-agent/racefetch/config"
	"github.com/use-agent/racefetch/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()
	if path := os.Getenv("RACEFETCH_CONFIG"); path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	// ── 2. Initialise structured logging ────────────────────────────
	app.InitLogger(cfg.Log, os.Stdout)
	slog.Info("racefetch starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"strategy_timeout", cfg.Race.PerStrategyTimeout,
		"overall_timeout", cfg.Race.OverallTimeout,
	)

	// ── 3. Build strategies, browser and dispatcher ─────────────────
	stack, err := app.Build(cfg)
	if err != nil {
		slog.Error("failed to build strategies", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	// ── 4. Cleaner and webhook notifier ─────────────────────────────
	cl := cleaner.NewCleaner()
	notifier := webhook.NewNotifier()

	// ── 5. Setup router ─────────────────────────────────────────────
	var pool handler.PoolStatter
	if stack.Scraper != nil {
		pool = stack.Scraper
	}
	router := api.NewRouter(stack.Dispatcher, cl, notifier, pool, cfg, time.Now())

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	if err := notifier.Wait(ctx); err != nil {
		slog.Warn("abandoned pending webhook deliveries", "error", err)
	}

	slog.Info("racefetch stopped")
}
