// Package httpapi wires the HTTP transport (Gin) to the chat repository,
// services, middleware, and route handlers. It centralizes cross-cutting
// concerns such as tracing, correlation IDs, logging/redaction, panic
// recovery, metrics, CORS, security headers, sessions, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → sessions → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/nereus-ai/chat-backend/internal/auth"
	"github.com/nereus-ai/chat-backend/internal/config"
	"github.com/nereus-ai/chat-backend/internal/http/handlers"
	"github.com/nereus-ai/chat-backend/internal/http/middleware"
)

// Dependencies carries the application components the router wires behind
// HTTP endpoints. Sessions, Chats, Auth, and Assistant are required;
// Idempotency and MissingKeys are optional.
type Dependencies struct {
	Sessions    *auth.Issuer
	Chats       handlers.ChatRepo
	Auth        handlers.AuthService
	Assistant   handlers.Assistant
	Idempotency handlers.IdempotencyStore
	MissingKeys func() []string
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), sessions and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Session: resolve the bearer token before logging so logs carry user ids
//  4. RedactingLogger: structured logs with PII scrubbing
//  5. Recovery: capture panics after logger
//  6. Body size limiter
//  7. Metrics
//  8. Rate limiter (per user/IP)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, deps Dependencies, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Resolve bearer sessions
	r.Use(middleware.Session(deps.Sessions))

	// 4) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"Idempotency-Key", // client retry keys may embed request fingerprints
		},
	}))

	// 5) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 6) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	installCORS(r, cfg.CORS.AllowedOrigins)

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	opts := []handlers.Option{}
	if deps.Idempotency != nil {
		opts = append(opts, handlers.WithIdempotency(deps.Idempotency))
	}
	if deps.MissingKeys != nil {
		opts = append(opts, handlers.WithMissingKeys(deps.MissingKeys))
	}
	h := handlers.New(deps.Chats, deps.Auth, deps.Assistant, opts...)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Auth and status (public)
		api.POST("/auth/login", h.Login)
		api.GET("/status", h.Status)

		// Shared chats (public, gated on the share flag)
		api.GET("/share/:id", h.GetSharedChat)

		// Chat history: the list tolerates anonymous callers (empty result);
		// single-chat reads and all mutations need an owner.
		api.GET("/chats", h.ListChats)
		api.DELETE("/chats", middleware.RequireSession(), h.ClearChats)
		api.GET("/chats/:id", middleware.RequireSession(), h.GetChat)
		api.DELETE("/chats/:id", middleware.RequireSession(), h.RemoveChat)
		api.POST("/chats/:id/share", middleware.RequireSession(), h.ShareChat)

		// Messages: anonymous turns stream but are never persisted.
		api.POST("/chats/:id/messages", h.PostMessage)
	}
}

// installCORS configures the cross-origin policy. With no allowlist the API
// is open to every origin without credentials; with an allowlist the allowed
// origin is echoed back ahead of gin-contrib/cors so even short-circuited
// responses carry the ACAO header.
func installCORS(r *gin.Engine, origins []string) {
	policy := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", "Idempotency-Key"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
		AllowCredentials: false, // must remain false when all origins are allowed
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		policy.AllowAllOrigins = true
		// Set ACAO: * even for requests without an Origin header, so plain
		// health checks and curl sessions see the open posture too.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(policy))
		return
	}

	policy.AllowOrigins = origins
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	})
	r.Use(cors.New(policy))
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
