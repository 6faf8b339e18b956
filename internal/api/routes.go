// Package api wires the HTTP surface: public health and auth routes, and
// the bearer-protected /api/v1 routes for chat, conversations, tools and MCP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/unroll-ai/unroll/internal/api/handlers"
	apimiddleware "github.com/unroll-ai/unroll/internal/api/middleware"
	"github.com/unroll-ai/unroll/internal/domain/scope"
	"github.com/unroll-ai/unroll/internal/domain/tool"
	"github.com/unroll-ai/unroll/internal/infra/llm"
	"github.com/unroll-ai/unroll/internal/infra/sqldb"
	pkgauth "github.com/unroll-ai/unroll/pkg/auth"
)

// Deps are the services the router exposes. MCP is optional.
type Deps struct {
	DB     *sqldb.DB
	Tokens *pkgauth.Manager
	Auth   handlers.AuthService
	Chat   handlers.ChatService
	Tools  *tool.Registry
	Model  llm.ChatModel
	MCP    http.Handler
	Logger *slog.Logger
}

// NewRouter creates the chi router with every route registered.
func NewRouter(d Deps) *chi.Mux {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()

	// Global middleware (runs on all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apimiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	// ===== PUBLIC ROUTES (no auth required) =====

	health := handlers.NewHealthHandler(d.DB, d.Model, logger)
	r.Get("/health", health.Live)
	r.Get("/health/ready", health.Ready)

	authHandler := handlers.NewAuthHandler(d.Auth)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register) // POST /auth/register
		r.Post("/login", authHandler.Login)       // POST /auth/login
	})

	// ===== PROTECTED ROUTES (Bearer JWT required) =====

	chatHandler := handlers.NewChatHandler(d.Chat, logger)
	toolHandler := handlers.NewToolHandler(d.Tools)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apimiddleware.Auth(d.Tokens))

		r.Get("/tools", toolHandler.ListTools) // GET /api/v1/tools
		if d.MCP != nil {
			r.Handle("/mcp", d.MCP) // MCP streamable HTTP, stateless
		}

		// Chat routes run in one request transaction that every scope borrows.
		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.Transaction(scope.FromDB(d.DB), logger))
			r.Post("/chat", chatHandler.Chat) // POST /api/v1/chat (SSE)
			r.Route("/chat/conversations", func(r chi.Router) {
				r.Get("/", chatHandler.ListConversations)         // GET /api/v1/chat/conversations
				r.Get("/{id}", chatHandler.GetConversation)       // GET /api/v1/chat/conversations/{id}
				r.Delete("/{id}", chatHandler.DeleteConversation) // DELETE /api/v1/chat/conversations/{id}
			})
		})
	})

	return r
}
