package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nereus-ai/chat-backend/internal/auth"
	"github.com/nereus-ai/chat-backend/internal/cache"
	"github.com/nereus-ai/chat-backend/internal/config"
	"github.com/nereus-ai/chat-backend/internal/domain"
	"github.com/nereus-ai/chat-backend/internal/repo"
	"github.com/nereus-ai/chat-backend/internal/services"
	"github.com/nereus-ai/chat-backend/internal/store"
)

func testConfig() config.Config {
	return config.Config{
		APIBasePath:     "/api/v1",
		RateRPS:         100,
		RateBurst:       10,
		CORS:            config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:        config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:            config.OTELConfig{ServiceName: "test-svc"},
		CacheMaxEntries: 100,
		ChatPageSize:    30,
		JWTSecret:       "router-secret",
		SessionTTL:      time.Hour,
	}
}

func testDeps(cfg config.Config) (Dependencies, *repo.ChatRepository) {
	ms := store.NewMemoryStore()
	chats := repo.NewChatRepository(ms, cache.NewLRU(cfg.CacheMaxEntries), cfg.ChatPageSize, zerolog.Nop())
	issuer := auth.NewIssuer([]byte(cfg.JWTSecret), cfg.SessionTTL)
	users := repo.NewUserRepository(ms, zerolog.Nop())

	assistant := &services.AssistantService{
		Chats:  chats,
		Stream: fixedStreamer{deltas: []string{"hello there"}},
	}
	deps := Dependencies{
		Sessions:    issuer,
		Chats:       chats,
		Auth:        services.NewAuthService(users, issuer),
		Assistant:   assistant,
		Idempotency: repo.NewIdempotencyRepository(ms, time.Hour, zerolog.Nop()),
		MissingKeys: cfg.MissingKeys,
	}
	return deps, chats
}

// fixedStreamer satisfies services.Streamer without a network.
type fixedStreamer struct {
	deltas []string
}

func (f fixedStreamer) StreamCompletion(ctx context.Context, _ []domain.Message, onDelta func(string) error) error {
	for _, d := range f.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return nil
}

func newRouter(t *testing.T, cfg config.Config) (*gin.Engine, Dependencies) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	deps, _ := testDeps(cfg)
	RegisterRoutes(r, deps, cfg)
	return r, deps
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newRouter(t, testConfig())

	// /health works
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"http://example.com"}
	r, _ := newRouter(t, cfg)

	// Any request runs through CORS middleware; header should reflect origin.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_StatusReportsMissingKeys(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = "" // JWT_SECRET missing, OPENAI_API_KEY unset as well
	gin.SetMode(gin.TestMode)
	r := gin.New()
	deps, _ := testDeps(cfg)
	deps.Sessions = auth.NewIssuer([]byte("still-need-one"), time.Hour)
	RegisterRoutes(r, deps, cfg)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /status = %d", w.Code)
	}
	var resp struct {
		MissingKeys []string `json:"missing_keys"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.MissingKeys) != 2 {
		t.Fatalf("missing_keys = %v", resp.MissingKeys)
	}
}

func TestRegisterRoutes_ProtectedRoutesRequireSession(t *testing.T) {
	r, _ := newRouter(t, testConfig())

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/api/v1/chats/c1"},
		{http.MethodDelete, "/api/v1/chats/c1"},
		{http.MethodDelete, "/api/v1/chats"},
		{http.MethodPost, "/api/v1/chats/c1/share"},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s -> %d, want 401", tc.method, tc.path, w.Code)
		}
	}

	// Public reads stay open.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/chats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("anonymous GET /chats -> %d, want 200", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/share/ghost", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /share/ghost -> %d, want 404", w.Code)
	}
}

func TestRegisterRoutes_MessageRoundTrip(t *testing.T) {
	cfg := testConfig()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	deps, chats := testDeps(cfg)
	RegisterRoutes(r, deps, cfg)

	token, err := deps.Sessions.Issue("u1", "ada@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Stream a message into a fresh chat.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/c1/messages", strings.NewReader(`{"message":"hello?"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("POST message -> %d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "event:done") {
		t.Fatalf("stream missing done event:\n%s", w.Body.String())
	}

	// The turn is visible through the repository the router wired.
	saved := chats.GetChat(context.Background(), "c1", "u1")
	if saved == nil || len(saved.Messages) != 2 {
		t.Fatalf("chat not persisted through the router wiring: %+v", saved)
	}

	// And through the HTTP read path.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/chats/c1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET chat -> %d", w.Code)
	}
	var got domain.Chat
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Title != "hello?" || got.Messages[1].Content != "hello there" {
		t.Fatalf("unexpected chat: %+v", got)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	// Hit all three
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/one", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "one" {
		t.Fatalf("GET /one got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/two", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "two" {
		t.Fatalf("GET /two got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("GET /api/ping got %d %q", rec.Code, rec.Body.String())
	}
}

// Smoke test that a request traverses session + ratelimit + otel + security headers pipeline.
func TestPipeline_Smoke(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour} // enabled (but only set on https)
	r, _ := newRouter(t, cfg)

	// Any request goes through the middleware stack
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	// simulate https so HSTS could be eligible if middleware checks scheme
	req.URL.Scheme = "https"
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /health = %d", w.Code)
	}
	// RequestID header should be present (from RequestID middleware)
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}
