// Package api assembles the gateway: a chi router exposing the chat
// orchestrator over REST, websocket and MCP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/matiasleandrokruk/scalechat/internal/api/handlers"
	apmiddleware "github.com/matiasleandrokruk/scalechat/internal/api/middleware"
)

// Deps are the services the router exposes.
type Deps struct {
	Chat     handlers.ChatService
	Sessions interface {
		handlers.SessionRegistry
		handlers.SessionCounter
	}
	Events handlers.EventLister
	Info   handlers.ServiceInfo
	WS     handlers.WSConfig
	Logger *slog.Logger
}

// NewRouter creates and configures a chi router with all routes.
func NewRouter(deps Deps) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Global middleware (runs on all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apmiddleware.AccessLog(logger.With("component", "http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions, http.MethodDelete},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
		MaxAge:         300,
	}))

	serviceHandler := handlers.NewServiceHandler(deps.Chat, deps.Sessions, deps.Info, logger)
	r.Get("/", serviceHandler.Root)
	r.Get("/health", serviceHandler.Health)
	r.Get("/metrics", serviceHandler.Metrics)
	r.Get("/stats", serviceHandler.Stats)

	chatHandler := handlers.NewChatHandler(deps.Chat, logger)
	r.Post("/chat", chatHandler.Chat)

	wsHandler := handlers.NewWSHandler(deps.Chat, deps.Sessions, deps.WS, logger.With("component", "ws"))
	r.Get("/ws/{client_id}", wsHandler.Serve)

	if deps.Events != nil {
		eventsHandler := handlers.NewEventsHandler(deps.Events, logger)
		r.Route("/api/v1/events", func(r chi.Router) {
			r.Get("/", eventsHandler.List)           // GET /api/v1/events
			r.Get("/summary", eventsHandler.Summary) // GET /api/v1/events/summary
		})
	}

	// MCP streamable HTTP uses GET, POST and DELETE on the same path.
	r.Handle("/mcp", handlers.NewMCPHandler(handlers.NewMCPServer(deps.Chat, deps.Info.Version)))

	return r
}
