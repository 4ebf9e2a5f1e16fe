// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/supportdesk/internal/app"
	"github.com/capitalize-ai/supportdesk/internal/config"
	"github.com/capitalize-ai/supportdesk/internal/handler"
	"github.com/capitalize-ai/supportdesk/pkg/logger"
	"github.com/capitalize-ai/supportdesk/pkg/tracing"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "supportdesk", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", logger.Err(err)...)
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect backends and build services
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize", logger.Err(err)...)
	}
	defer a.Close()

	if a.Chat == nil {
		log.Fatal("an LLM API key is required to serve chat",
			zap.String("provider", string(cfg.LLMProvider)),
		)
	}

	// Initialize handlers
	handlers := handler.Handlers{
		Health:        handler.NewHealthHandler(a.Checkers...),
		Chat:          handler.NewChatHandler(a.Chat, log),
		Knowledge:     handler.NewKnowledgeHandler(a.KnowledgeBase, log),
		Conversations: handler.NewConversationHandler(a.Conversations, log),
		Messages:      handler.NewMessageHandler(a.Conversations, log),
	}

	router := handler.NewRouter(handler.RouterConfig{
		JWTSecret:               cfg.JWTSecret,
		DashboardOrigins:        cfg.DashboardOrigins,
		RateLimitRequests:       cfg.RateLimitRequests,
		RateLimitWindow:         cfg.RateLimitWindow,
		WidgetRateLimitRequests: cfg.WidgetRateLimitRequests,
		WidgetRateLimitWindow:   cfg.WidgetRateLimitWindow,
		RequestTimeout:          cfg.RequestTimeout,
	}, handlers, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening",
			zap.String("port", cfg.ServerPort),
			zap.Bool("persistent", a.Persistent),
			zap.Bool("events", cfg.NATSEnabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", logger.Err(err)...)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", logger.Err(err)...)
	}

	log.Info("server stopped")
}
