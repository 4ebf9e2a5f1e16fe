package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/supportdesk/internal/middleware"
	"github.com/capitalize-ai/supportdesk/pkg/logger"
)

// RouterConfig holds the HTTP settings the router applies.
type RouterConfig struct {
	JWTSecret        string
	DashboardOrigins []string

	// Dashboard limits are per workspace, widget limits per workspace key
	// and client address.
	RateLimitRequests       int
	RateLimitWindow         time.Duration
	WidgetRateLimitRequests int
	WidgetRateLimitWindow   time.Duration

	// RequestTimeout bounds a request including answer generation.
	RequestTimeout time.Duration
}

// Handlers groups the handlers mounted by NewRouter.
type Handlers struct {
	Health        *HealthHandler
	Chat          *ChatHandler
	Knowledge     *KnowledgeHandler
	Conversations *ConversationHandler
	Messages      *MessageHandler
}

// NewRouter builds the API router: public widget routes under /api and the
// authenticated dashboard under /api/v1.
func NewRouter(cfg RouterConfig, h Handlers, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
		}

		// Widget routes are public and identified by the workspace key.
		// Each prefix is its own subrouter so CORS preflights reach the
		// middleware.
		widget := func(r chi.Router) {
			r.Use(middleware.WidgetCORS())
			if cfg.WidgetRateLimitRequests > 0 {
				r.Use(middleware.WidgetRateLimit(cfg.WidgetRateLimitRequests, cfg.WidgetRateLimitWindow))
			}
		}

		r.Route("/chat", func(r chi.Router) {
			widget(r)
			r.Post("/", h.Chat.Send)
			r.Get("/history", h.Chat.History)
		})
		r.Route("/widget", func(r chi.Router) {
			widget(r)
			r.Get("/config", h.Chat.Config)
		})
		r.Route("/tickets", func(r chi.Router) {
			widget(r)
			r.Post("/widget", h.Chat.Handoff)
		})

		r.Route("/v1", func(r chi.Router) {
			r.Use(middleware.DashboardCORS(cfg.DashboardOrigins))
			r.Use(middleware.Auth(cfg.JWTSecret))
			if cfg.RateLimitRequests > 0 {
				r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
			}

			r.Route("/knowledge-base", func(r chi.Router) {
				r.Get("/", h.Knowledge.List)
				r.Delete("/", h.Knowledge.Delete)
				r.Post("/text", h.Knowledge.AddText)
				r.Post("/faq", h.Knowledge.AddFAQ)
				r.Post("/pdf", h.Knowledge.AddPDF)
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", h.Conversations.List)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Conversations.Get)
					r.Patch("/", h.Conversations.Update)
					r.Post("/replies", h.Messages.Reply)
					r.Get("/events", h.Messages.Events)
				})
			})
		})
	})

	return r
}
