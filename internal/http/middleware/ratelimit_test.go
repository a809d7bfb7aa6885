package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	// Anonymous requests key by client IP.
	if key := KeyByUserOrIP()(c); !strings.HasPrefix(key, "ip:") || !strings.Contains(key, "203.0.113.9") {
		t.Fatalf("anonymous key = %q; want ip-based", key)
	}
	// A resolved session wins over the IP.
	c.Set(userIDKey, "u123")
	if key := KeyByUserOrIP()(c); key != "user:u123" {
		t.Fatalf("session key = %q; want user:u123", key)
	}
}

func TestRateLimiterBucketReuse(t *testing.T) {
	rl := NewRateLimiter(2.0, 0, KeyByUserOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst <= 0 must be coerced to 1, got %d", rl.burst)
	}
	lim := rl.take("k1")
	if lim == nil {
		t.Fatalf("expected a limiter")
	}
	if rl.take("k1") != lim {
		t.Fatalf("same key must map to the same bucket")
	}
}

func TestRateLimiterEvictsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1.0, 1, KeyByUserOrIP())

	rl.mu.Lock()
	rl.buckets["stale"] = &bucket{
		lim:      rate.NewLimiter(1, 1),
		lastSeen: time.Now().Add(-bucketIdleTTL - time.Hour),
	}
	rl.lookups = gcEvery - 1 // the next take triggers a sweep
	rl.mu.Unlock()

	_ = rl.take("fresh")

	rl.mu.Lock()
	_, staleAlive := rl.buckets["stale"]
	_, freshAlive := rl.buckets["fresh"]
	rl.mu.Unlock()

	if staleAlive {
		t.Fatalf("stale bucket survived the sweep")
	}
	if !freshAlive {
		t.Fatalf("fresh bucket was not created")
	}
}

func TestRateLimiterHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// burst 1 at 1 rps: the first request passes, an immediate second does not.
	rl := NewRateLimiter(1.0, 1, KeyByUserOrIP())
	r := gin.New()
	r.Use(RequestID())
	r.Use(rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	if w := serve(r, http.MethodGet, "/ok", nil); w.Code != http.StatusOK {
		t.Fatalf("first request blocked: %d", w.Code)
	}
	w := serve(r, http.MethodGet, "/ok", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d; want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("Retry-After = %q", got)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("429 body not JSON: %v", err)
	}
	if body["code"] != "rate_limited" || body["message"] != "rate limit exceeded" {
		t.Fatalf("unexpected 429 body: %v", body)
	}
	if body["request_id"] == "" {
		t.Fatalf("429 body missing request id: %v", body)
	}
}

func TestRateLimiterIsolatesIdentities(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(1.0, 1, KeyByUserOrIP())
	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(addr string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.RemoteAddr = net.JoinHostPort(addr, "1000")
		r.ServeHTTP(w, req)
		return w.Code
	}

	// Exhaust one caller's bucket; a different caller still passes.
	if send("198.51.100.1") != http.StatusOK || send("198.51.100.1") != http.StatusTooManyRequests {
		t.Fatalf("first identity not limited as expected")
	}
	if send("198.51.100.2") != http.StatusOK {
		t.Fatalf("second identity should have its own bucket")
	}
}
