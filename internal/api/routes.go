// Route registration and go-chi router setup, restructured into public
// routes (/health, /auth/*, /api/providers, /api/chat) and JWT-protected
// routes (/api/v1/*).
package api

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mkersic/relay/internal/api/handlers"
	apmiddleware "github.com/mkersic/relay/internal/api/middleware"
	domainaccount "github.com/mkersic/relay/internal/domain/account"
	domainaudit "github.com/mkersic/relay/internal/domain/audit"
	"github.com/mkersic/relay/internal/domain/chat"
	domainconv "github.com/mkersic/relay/internal/domain/conversation"
	domainprovider "github.com/mkersic/relay/internal/domain/provider"
	domaintool "github.com/mkersic/relay/internal/domain/tool"
	"github.com/mkersic/relay/internal/infra/config"
	"github.com/mkersic/relay/internal/infra/eventbus"
)

// NewRouter creates and configures a chi router with all routes.
func NewRouter(db *sql.DB, cfg config.Config) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Global middleware (runs on all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Shared domain services
	auditService := domainaudit.NewService(db)
	registry := domainprovider.NewDefaultRegistry()
	resolver := domainprovider.NewResolver(registry, domainprovider.ResolverConfig{
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		GroqBaseURL:      cfg.GroqBaseURL,
		AnthropicBaseURL: cfg.AnthropicBaseURL,
		GoogleBaseURL:    cfg.GoogleBaseURL,
	})

	bus := eventbus.New()
	conversationService := domainconv.NewService(db, bus)
	chatService := chat.NewService(resolver, cfg.RequestTimeout)
	manager := chat.NewManager(chatService)
	go domainaudit.ConsumeMessageEvents(context.Background(), bus, auditService)

	keyService, err := domainaccount.NewKeyService(db, cfg.KeyEncryptionSecret)
	if err != nil {
		return nil, err
	}

	toolRegistry := domaintool.NewRegistry(db)
	if err := toolRegistry.EnsureBuiltinDefinitions(context.Background()); err != nil {
		return nil, err
	}
	if err := domaintool.RegisterBuiltinExecutors(toolRegistry, domaintool.DefaultLatency); err != nil {
		return nil, err
	}

	// ===== PUBLIC ROUTES (no auth required) =====

	// Health check — unauthenticated, used by load balancers and probes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	authHandler := handlers.NewAuthHandler(domainaccount.NewAuthServiceWithAudit(db, auditService))
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register) // POST /auth/register
		r.Post("/login", authHandler.Login)       // POST /auth/login
	})

	// Catalog + stateless completion: public, callers bring their own keys
	providerHandler := handlers.NewProviderHandler(registry)
	chatHandler := handlers.NewChatHandler(registry, resolver)
	r.Get("/api/providers", providerHandler.List) // GET /api/providers
	r.Post("/api/chat", chatHandler.Chat)         // POST /api/chat

	// ===== PROTECTED ROUTES (JWT required via AuthMiddleware) =====

	conversationHandler := handlers.NewConversationHandler(conversationService, manager, keyService, registry)
	keysHandler := handlers.NewKeysHandler(keyService)
	toolHandler := handlers.NewToolHandler(toolRegistry)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apmiddleware.AuthMiddleware)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)                 // POST /api/v1/conversations
			r.Get("/", conversationHandler.List)                    // GET /api/v1/conversations
			r.Get("/{id}", conversationHandler.Get)                 // GET /api/v1/conversations/{id}
			r.Delete("/{id}", conversationHandler.Delete)           // DELETE /api/v1/conversations/{id}
			r.Post("/{id}/chat", conversationHandler.Chat)          // POST /api/v1/conversations/{id}/chat
			r.Post("/{id}/regenerate", conversationHandler.Regenerate) // POST /api/v1/conversations/{id}/regenerate
		})

		r.Route("/keys", func(r chi.Router) {
			r.Get("/", keysHandler.List)            // GET /api/v1/keys
			r.Put("/{name}", keysHandler.Store)     // PUT /api/v1/keys/{name}
			r.Delete("/{name}", keysHandler.Delete) // DELETE /api/v1/keys/{name}
		})

		r.Route("/tools", func(r chi.Router) {
			r.Get("/", toolHandler.List)                  // GET /api/v1/tools
			r.Post("/{name}/execute", toolHandler.Execute) // POST /api/v1/tools/{name}/execute
		})
	})

	return r, nil
}
