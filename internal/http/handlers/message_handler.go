// Message HTTP handlers.
//
// This file exposes the streaming assistant endpoint:
//   - POST /chats/{id}/messages
//
// The response is a Server-Sent Events stream: one `sources` event with the
// retrieved grounding passages, a `message` event per model delta carrying the
// cumulative answer text, and a final `done` event with the persisted message
// id. Errors occurring after the stream has started are delivered as an
// `error` event because the status line is already on the wire.
//
// Replays: when an Idempotency-Key header accompanies the request and a record
// of the same (user, chat, key) tuple exists, the request is answered from the
// record without re-running the model.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nereus-ai/chat-backend/internal/auth"
	"github.com/nereus-ai/chat-backend/internal/domain"
	"github.com/nereus-ai/chat-backend/internal/repo"
	"github.com/nereus-ai/chat-backend/internal/services"
)

// Assistant defines the answer-generation contract consumed by HTTP handlers.
type Assistant interface {
	// Respond streams an answer to prompt within the chat, persists the turn,
	// and returns the assistant message.
	Respond(ctx context.Context, sess *auth.Session, chatID, prompt string, h services.StreamHandlers) (*domain.Message, error)
}

// IdempotencyStore defines replay-detection storage for message posts.
type IdempotencyStore interface {
	// Get returns the stored record for the tuple, or nil when absent/expired.
	Get(ctx context.Context, userID, chatID, key string, now time.Time) *repo.Idempotency
	// Put records a completed request. Failures are absorbed.
	Put(ctx context.Context, userID, chatID, key, messageID string, status int)
}

// idempotencyKeyHeader carries the client-chosen replay detection key.
const idempotencyKeyHeader = "Idempotency-Key"

// PostMessageRequest is the JSON payload for sending a message.
type PostMessageRequest struct {
	Message string `json:"message" binding:"required" example:"How much does the pro plan cost?"`
}

// ReplayedResponse is returned when an Idempotency-Key matches a prior request.
type ReplayedResponse struct {
	MessageID string `json:"message_id"`
	Replayed  bool   `json:"replayed"`
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message
// @Description Appends a user message to the chat and streams the assistant's answer over Server-Sent Events. The chat is created on first message.
// @Tags        Messages
// @Accept      json
// @Produce     text/event-stream
//
// @Param       Authorization    header  string  false "Bearer session token (anonymous chats are not persisted)"
// @Param       Idempotency-Key  header  string  false "Replay detection key"
// @Param       id               path    string  true  "Chat ID"
// @Param       body             body    handlers.PostMessageRequest  true  "Message payload"
//
// @Success     200  {string} string "SSE stream (sources, message*, done)"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Answer failed"
// @Router      /chats/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	chatID := c.Param("id")

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message is required")
		return
	}

	sess := session(c)
	uid := userID(c)

	// Replay short-circuit.
	idemKey := strings.TrimSpace(c.GetHeader(idempotencyKeyHeader))
	if h.idempotency != nil && idemKey != "" && uid != "" {
		if rec := h.idempotency.Get(c.Request.Context(), uid, chatID, idemKey, time.Now()); rec != nil {
			ok(c, rec.Status, ReplayedResponse{MessageID: rec.MessageID, Replayed: true})
			return
		}
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	stream := services.StreamHandlers{
		OnSources: func(sources []services.Source) error {
			c.SSEvent("sources", sources)
			c.Writer.Flush()
			return nil
		},
		OnContent: func(content string) error {
			if err := c.Request.Context().Err(); err != nil {
				return err
			}
			c.SSEvent("message", gin.H{"content": content})
			c.Writer.Flush()
			return nil
		},
	}

	msg, err := h.assistant.Respond(c.Request.Context(), sess, chatID, req.Message, stream)
	if err != nil {
		if !c.Writer.Written() {
			switch {
			case errors.Is(err, services.ErrEmptyPrompt), errors.Is(err, services.ErrTooLong):
				fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			default:
				fail(c, http.StatusInternalServerError, ErrCodeAnswerFailed, "could not generate an answer")
			}
			return
		}
		// Stream already started; the status line is gone.
		c.SSEvent("error", gin.H{"code": ErrCodeAnswerFailed, "message": "could not generate an answer"})
		c.Writer.Flush()
		return
	}

	c.SSEvent("done", gin.H{"message_id": msg.ID})
	c.Writer.Flush()

	if h.idempotency != nil && idemKey != "" && uid != "" {
		h.idempotency.Put(c.Request.Context(), uid, chatID, idemKey, msg.ID, http.StatusOK)
	}
}
