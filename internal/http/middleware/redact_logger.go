// Access logging with PII scrubbing.
//
// RedactingLogger is the access logger the router actually installs. It does
// everything Logger() does (one structured line per request, request-scoped
// logger in the context) but scrubs obvious personal identifiers from query
// strings and header values first, and fully masks sensitive headers. Bodies
// are never logged.
//
// Scrubbing narrows, it does not eliminate: clients should still keep PII out
// of query strings and headers where they can.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Patterns scrubbed from logged values. UUIDs go first: the phone pattern is
// loose enough to latch onto a UUID's digit groups otherwise.
var (
	redactUUIDRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	redactEmailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	redactPhoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// Headers masked outright regardless of options. Session tokens and cookies
// have no business in a log line, scrubbed or not.
var alwaysMasked = []string{"authorization", "cookie", "set-cookie"}

// RedactOptions extends the built-in masking. Header names in MaskHeaders are
// matched case-insensitively and their values replaced wholesale with
// "[REDACTED]".
type RedactOptions struct {
	MaskHeaders []string
}

// scrub rewrites identifiers in s with typed placeholders.
func scrub(s string) string {
	if s == "" {
		return s
	}
	s = redactUUIDRE.ReplaceAllString(s, "[REDACTED:id]")
	s = redactEmailRE.ReplaceAllString(s, "[REDACTED:email]")
	s = redactPhoneRE.ReplaceAllString(s, "[REDACTED:phone]")
	return s
}

// RedactingLogger logs one structured line per request with scrubbed request
// metadata, and stores a request-scoped logger under the same context key
// Logger() uses, so LoggerFrom keeps working downstream. Level selection
// matches Logger(): error for 5xx, warn for 4xx, info otherwise.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	masked := make(map[string]struct{}, len(alwaysMasked)+len(opts.MaskHeaders))
	for _, h := range alwaysMasked {
		masked[h] = struct{}{}
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for name, values := range c.Request.Header {
			if _, mask := masked[strings.ToLower(name)]; mask {
				safeHeaders[name] = "[REDACTED]"
				continue
			}
			safeHeaders[name] = scrub(strings.Join(values, ", "))
		}

		l := log.With().
			Str("request_id", c.GetString(requestIDKey)).
			Str("user_id", c.GetString(userIDKey)).
			Str("method", c.Request.Method).
			Str("path", routePath(c)).
			Str("query", scrub(truncate(c.Request.URL.RawQuery, maxQueryLogged))).
			Logger()
		c.Set(loggerKey, &l)

		c.Next()

		status := c.Writer.Status()
		ev := l.Info()
		switch {
		case status >= 500:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		}
		ev.
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
