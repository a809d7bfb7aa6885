// In-memory token-bucket rate limiting.
//
// One bucket per caller identity, created on demand and evicted once idle.
// The limiter is process-local: with more than one replica each instance
// enforces its own budget, which is acceptable for edge-level abuse control
// but is not a global quota.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	// bucketIdleTTL is how long an untouched bucket survives.
	bucketIdleTTL = 10 * time.Minute
	// gcEvery is the lookup count between idle-bucket sweeps.
	gcEvery = 5000
)

// keyFunc maps a request to the identity owning its bucket. Keys are
// namespaced by the implementation ("user:…", "ip:…") so identities from
// different sources cannot collide.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys authenticated requests by the session's user id and
// anonymous ones by client IP. Session() must run earlier for the user id to
// be present.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid := c.GetString(userIDKey); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// bucket pairs a limiter with its last use, for idle eviction.
type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out tokens from per-identity buckets. Safe for
// concurrent use; the map of live buckets is guarded by mu.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups int
}

// NewRateLimiter builds a limiter replenishing rps tokens per second with
// the given burst capacity (coerced to at least 1). rps of 0 admits nothing.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		buckets: make(map[string]*bucket),
	}
}

// take returns the bucket for key, creating it when absent. Every gcEvery
// lookups it first sweeps idle buckets, before touching the requested one, so
// a stale bucket being fetched right now is still eligible for eviction.
func (rl *RateLimiter) take(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= gcEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= bucketIdleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.lim
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.buckets[key] = &bucket{lim: lim, lastSeen: now}
	return lim
}

// Handler enforces the limit, answering exhausted callers with 429, a
// Retry-After hint, and the standard error envelope.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.take(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.GetString(requestIDKey),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
