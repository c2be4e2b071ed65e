// Live-assist relay server: chat with an automated assistant, screen-share
// frame analysis, and human-supervisor escalation.
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

	"github.com/NikhilMore1/AI-AGENT/internal/api"
	"github.com/NikhilMore1/AI-AGENT/internal/config"
	"github.com/NikhilMore1/AI-AGENT/internal/gemini"
	"github.com/NikhilMore1/AI-AGENT/internal/help"
	"github.com/NikhilMore1/AI-AGENT/internal/middleware"
	"github.com/NikhilMore1/AI-AGENT/internal/relay"
	"github.com/NikhilMore1/AI-AGENT/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	if cfg.GeminiAPIKey == "" {
		slog.Warn("GEMINI_API_KEY not set, completion and frame analysis will fail over to fallbacks")
	}

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Initialize services.
	client := gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	registry := relay.NewRegistry(cfg.SendBufferSize)
	queue := help.NewQueue(repo)
	router := help.NewRouter(registry, queue)

	// Initialize handlers.
	wsHandler := relay.NewHandler(registry, client, cfg.FrameInterval, cfg.AnalyzerTimeout, cfg.FrontendURL, cfg.IsDevelopment())
	wsHandler.SetLifecycleHook(router)
	apiHandler := api.NewHandler(repo, queue, router, registry, client, cfg.CompletionTimeout)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	apiHandler.RegisterRoutes(r)

	// Duplex channel endpoint (clients and supervisor observers).
	r.Get("/ws/session", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // long-lived websocket connections
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
