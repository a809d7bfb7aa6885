// Package handlers implements the HTTP surface of the public API: login,
// chat history, share links, the streaming assistant, and the status probe.
//
// Every failure path funnels through fail(), which emits the uniform error
// envelope documented on ErrorResponse. Handlers never write ad-hoc error
// bodies, so clients can rely on a stable `code` field regardless of which
// endpoint rejected the request.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nereus-ai/chat-backend/internal/http/middleware"
)

// ErrorResponse is the JSON envelope carried by every non-2xx response.
//
// RequestID echoes the X-Request-ID correlation header so a client error can
// be matched to server logs. Code is stable and machine-readable (constants in
// errors.go); Message is free-form and safe to surface to end users.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"chat not found"`
}

// fail writes the error envelope with the given status and aborts the chain.
// Server-side failures (>=500) are additionally logged through the
// request-scoped logger; 4xx responses are the client's problem and stay out
// of the error log.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail exposes fail to the router package, which needs the same envelope for
// 404/405 fallbacks registered outside this package.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
