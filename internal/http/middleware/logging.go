// Package middleware holds the Gin middleware shared by the HTTP layer:
// correlation IDs, session resolution, access logging with redaction, panic
// recovery, Prometheus instrumentation, rate limiting, and security headers.
//
// This file covers the correlation and logging pieces. RequestID() stamps
// every request with an X-Request-ID, Logger() attaches a request-scoped
// zerolog.Logger (retrievable via LoggerFrom) and emits one access-log line
// per request, and Recovery() turns panics into JSON 500s that still carry
// the correlation id.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key holding the correlation id.
	requestIDKey = "requestID"
	// requestIDHeader carries the correlation id on the wire, both directions.
	requestIDHeader = "X-Request-ID"
	// loggerKey is the Gin context key holding the request-scoped logger.
	loggerKey = "logger"
	// maxQueryLogged bounds how much of a raw query string ends up in a log line.
	maxQueryLogged = 2048
)

// RequestID reuses the caller's X-Request-ID when one is present, otherwise
// generates a UUID. The id is stored in the context and echoed on the
// response so clients and log lines can be correlated. Install it first.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger emits one structured access-log line per request and stores a
// request-scoped logger in the context for handlers and services to enrich.
// It expects RequestID() (and, when user attribution matters, Session())
// to have run already.
//
// Level follows the outcome: 5xx and collected Gin errors log at error,
// 4xx at warn, everything else at info.
//
// The default wiring uses RedactingLogger for the access line instead; this
// remains the plain variant for deployments that do not want scrubbing.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		l := log.With().
			Str("request_id", c.GetString(requestIDKey)).
			Str("user_id", c.GetString(userIDKey)).
			Str("method", c.Request.Method).
			Str("path", routePath(c)).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogged)).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("referer", c.Request.Referer()).
			Int64("bytes_in", c.Request.ContentLength). // -1 when unknown
			Logger()
		c.Set(loggerKey, &l)

		c.Next()

		line := l.With().
			Int("status", c.Writer.Status()).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Logger()

		switch status := c.Writer.Status(); {
		case len(c.Errors) > 0:
			line.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= http.StatusInternalServerError:
			line.Error().Msg("request")
		case status >= http.StatusBadRequest:
			line.Warn().Msg("request")
		default:
			line.Info().Msg("request")
		}
	}
}

// Recovery converts panics into a JSON 500 carrying the correlation id, and
// logs the panic value with a stack trace. When the handler already started
// writing, only the status can be salvaged.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := c.GetString(requestIDKey)
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", rid).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger attached by Logger() or
// RedactingLogger(). Without one it falls back to the global logger, so the
// result is always usable.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// routePath prefers the registered route pattern over the raw URL so log and
// metric labels stay bounded; unmatched requests (404s) fall back to the raw
// path.
func routePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// asString narrows a context value to string, yielding "" for anything else.
func asString(v any) string {
	s, _ := v.(string)
	return s
}

// truncate caps s at max bytes, marking the cut with an ellipsis. max <= 0
// disables the cap. Byte-level truncation is fine for log output.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
