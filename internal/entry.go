// Package internal provides emulator initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/blaze/internal/emulator"
	"github.com/starford/blaze/internal/sse"
	"github.com/starford/blaze/internal/store"
)

// Run starts the local database emulator with the given options and
// blocks until shutdown.
func Run(ctx context.Context, opts ...Option) error {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	if ro.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := ro.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.Emulator.HTTP.Address()),
		slog.String("sqlite_path", cfg.Emulator.SQLitePath),
		slog.String("seed", cfg.Emulator.Seed),
		slog.String("log_level", cfg.App.LogLevel.String()))

	tree := store.New()

	// Optional snapshot persistence.
	var db *store.DB
	if cfg.Emulator.SQLitePath != "" {
		var err error
		db, err = store.Open(cfg.Emulator.SQLitePath)
		if err != nil {
			return fmt.Errorf("init snapshot db: %w", err)
		}
		defer db.Close()

		root, err := db.Load()
		if err != nil {
			logger.Warn("snapshot load failed", slog.String("error", err.Error()))
		} else if root != nil {
			tree.Replace(root)
			logger.Info("snapshot restored")
		}
	}

	// Seed file wins over a restored snapshot.
	if cfg.Emulator.Seed != "" {
		if err := store.LoadSeed(tree, cfg.Emulator.Seed); err != nil {
			return fmt.Errorf("load seed: %w", err)
		}
		logger.Info("seed loaded", slog.String("path", cfg.Emulator.Seed))
	}

	broker := sse.NewBroker(cfg.Emulator.KeepAlive)
	defer broker.Close()

	srv := emulator.New(tree, broker, db, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoint (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/", emulator.NewRouter(srv, cfg.Emulator.Auth))

	httpServer := &http.Server{
		Addr:    cfg.Emulator.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Emulator starting...", slog.String("http_address", cfg.Emulator.HTTP.Address()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Hot-reload the seed file, announcing reloads to stream clients.
	if cfg.Emulator.Seed != "" {
		g.Go(func() error {
			return store.WatchSeed(gCtx, tree, cfg.Emulator.Seed, logger, func() {
				broker.Publish(sse.Event{Type: "put", Path: "/", Data: tree.Export()})
			})
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.Emulator.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down emulator...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Release the seed watcher so Wait can return.
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Emulator stopped successfully")
	return nil
}
