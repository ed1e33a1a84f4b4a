package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/identra/identra/internal/audit"
	"github.com/identra/identra/internal/identity"
	"github.com/identra/identra/internal/oauth2"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identityService *identity.Service
	oauth2Service   *oauth2.Service
	clientService   *oauth2.ClientService
	signer          *oauth2.Signer
	auditLogger     audit.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	identityService *identity.Service,
	oauth2Service *oauth2.Service,
	clientService *oauth2.ClientService,
	signer *oauth2.Signer,
	auditLogger audit.Logger,
) *Handler {
	return &Handler{
		identityService: identityService,
		oauth2Service:   oauth2Service,
		clientService:   clientService,
		signer:          signer,
		auditLogger:     auditLogger,
	}
}

// RouterConfig holds router-level configuration
type RouterConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: cfg.AllowCredentials,
	}))

	r.Get("/health", h.HealthCheck)
	r.Get("/.well-known/jwks.json", h.JWKS)

	r.Route("/oauth2", func(r chi.Router) {
		// RFC 6749 Section 3.1
		r.Get("/authorize", h.Authorize)
		r.Post("/authorize/approve", h.ApproveAuthorize)
		r.Post("/authorize/deny", h.DenyAuthorize)

		// RFC 6749 Section 3.2
		r.Post("/token", h.Token)

		// RFC 7662
		r.Post("/introspect", h.Introspect)

		// RFC 7009
		r.Post("/revoke", h.Revoke)
	})

	// First-party management API, bearer protected
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.BearerAuthMiddleware)

		r.Post("/users", h.CreateUser)
		r.Get("/users/{userID}", h.GetUser)
		r.Post("/users/{userID}/deactivate", h.DeactivateUser)

		r.Post("/clients", h.CreateClient)
		r.Get("/clients/{clientID}", h.GetClient)
		r.Post("/clients/{clientID}/deactivate", h.DeactivateClient)
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "identra",
	})
}

// JWKS serves the token verification key set (RFC 7517), enabling resource
// servers to validate access tokens without calling introspection.
func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.signer.GetJWKS())
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
