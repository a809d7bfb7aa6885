// Hardening headers for a JSON API behind a reverse proxy.
//
// No Content-Security-Policy here: the service never serves HTML, and a CSP
// would only confuse API clients. HSTS is opt-in and emitted only when the
// request actually arrived over HTTPS, directly or via X-Forwarded-Proto.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// defaultHSTSMaxAge applies when SecurityOptions.HSTSMaxAge is unset.
const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures SecurityHeaders.
//
// EnableHSTS must only be set when traffic is HTTPS end to end, proxy leg
// included. NoStore adds Cache-Control: no-store for responses that must not
// be cached; the chat list relies on ETag revalidation, so the router leaves
// it off. EnablePolicy adds browser feature restrictions, harmless for
// non-browser clients.
type SecurityOptions struct {
	EnableHSTS   bool
	HSTSMaxAge   time.Duration
	NoStore      bool
	EnablePolicy bool
}

// SecurityHeaders attaches a conservative header set to every response:
// nosniff, frame denial, and no-referrer always; feature policies, cache
// suppression, and HSTS per the options. It also makes sure X-Request-ID is
// CORS-exposed whenever one is present, so browser clients can quote it.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hstsValue := "max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}

		if opt.EnableHSTS && requestIsHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hstsValue)
		}

		if h.Get(requestIDHeader) != "" {
			exposeHeader(h, requestIDHeader)
		}

		c.Next()
	}
}

// exposeHeader appends name to Access-Control-Expose-Headers without
// clobbering values another middleware already put there.
func exposeHeader(h http.Header, name string) {
	const expose = "Access-Control-Expose-Headers"
	cur := h.Get(expose)
	switch {
	case cur == "":
		h.Set(expose, name)
	case !strings.Contains(cur, name):
		h.Set(expose, cur+", "+name)
	}
}

// requestIsHTTPS reports whether the request used TLS, either terminated
// here or at a proxy that set X-Forwarded-Proto.
func requestIsHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
