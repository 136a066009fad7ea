package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"markestedt/clipsync/config"
	"markestedt/clipsync/relay"
	"markestedt/clipsync/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadRelay()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: config.ParseLevel(cfg.LogLevel)}
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	dbPath := cfg.DatabasePath
	if dbPath == "" {
		dbPath = storage.MemoryPath
		slog.Warn("DATABASE_PATH not set, history is kept in memory only")
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		slog.Error("Failed to open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv := relay.NewServer(db, relay.Options{
		HistoryLimit:  cfg.HistoryLimit,
		HistoryRetain: cfg.HistoryRetain,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hubDone := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(hubDone)
	}()

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("Starting clipsync relay", "addr", cfg.Addr(), "env", cfg.Env, "history_limit", cfg.HistoryLimit)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down relay")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Forced shutdown", "error", err)
	}
	<-hubDone

	slog.Info("Relay stopped")
}
