// Chat HTTP handlers.
//
// This file exposes REST endpoints for chat resources:
//   - GET    /chats             (list, ETag support)
//   - GET    /chats/{id}        (fetch one, owner-scoped)
//   - DELETE /chats/{id}        (remove)
//   - DELETE /chats             (clear history)
//   - POST   /chats/{id}/share  (publish a share link)
//   - GET    /share/{id}        (public shared view)
//
// Handlers are transport-thin: they validate input, call the repository, and
// translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nereus-ai/chat-backend/internal/auth"
	"github.com/nereus-ai/chat-backend/internal/domain"
	"github.com/nereus-ai/chat-backend/internal/http/middleware"
	"github.com/nereus-ai/chat-backend/internal/repo"
)

//
// Repository contract
//

// ChatRepo defines the chat history operations consumed by HTTP handlers.
//
// Implementations must be safe for concurrent use and honor the provided
// context for cancellation and timeouts.
type ChatRepo interface {
	// GetChats lists the user's chats, newest first.
	GetChats(ctx context.Context, userID string) []domain.Chat
	// GetChat fetches a chat by ID scoped to the user; nil means absent or
	// not owned.
	GetChat(ctx context.Context, id, userID string) *domain.Chat
	// GetSharedChat fetches a chat by ID only if it has been shared.
	GetSharedChat(ctx context.Context, id string) *domain.Chat
	// RemoveChat deletes a chat owned by the session user.
	RemoveChat(ctx context.Context, sess *auth.Session, id, path string) error
	// ClearChats drops the session user's chat history.
	ClearChats(ctx context.Context, sess *auth.Session) error
	// ShareChat publishes a share link for a chat owned by the session user.
	ShareChat(ctx context.Context, sess *auth.Session, id string) (*domain.Chat, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for authentication, chat history, and
// the streaming assistant. It depends on abstract contracts to keep transport
// concerns separate from business logic.
type Handlers struct {
	chats       ChatRepo
	authSvc     AuthService
	assistant   Assistant
	idempotency IdempotencyStore
	missingKeys func() []string
}

// New constructs a Handlers instance bound to the given collaborators.
// idempotency and missingKeys are optional.
func New(chats ChatRepo, authSvc AuthService, assistant Assistant, opts ...Option) *Handlers {
	h := &Handlers{chats: chats, authSvc: authSvc, assistant: assistant}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Option customizes optional handler collaborators.
type Option func(*Handlers)

// WithIdempotency enables replay detection for message posts.
func WithIdempotency(s IdempotencyStore) Option {
	return func(h *Handlers) { h.idempotency = s }
}

// WithMissingKeys wires the readiness probe behind GET /status.
func WithMissingKeys(fn func() []string) Option {
	return func(h *Handlers) { h.missingKeys = fn }
}

// session returns the verified session for the request, or nil when anonymous.
func session(c *gin.Context) *auth.Session {
	return middleware.SessionFrom(c)
}

// userID returns the authenticated user id, or "" for anonymous requests.
func userID(c *gin.Context) string {
	if s := session(c); s != nil {
		return s.UserID
	}
	return ""
}

//
// Handlers
//

// ListChats godoc
// @ID          listChats
// @Summary     List chats
// @Description Returns the user's chats, newest first. Supports weak ETag via If-None-Match and may return 304. Anonymous requests receive an empty list.
// @Tags        Chats
// @Produce     json
//
// @Param       Authorization  header  string  false "Bearer session token"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
//
// @Success     200  {array}  domain.Chat
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Router      /chats [get]
func (h *Handlers) ListChats(c *gin.Context) {
	uid := userID(c)
	chats := h.chats.GetChats(c.Request.Context(), uid)

	// Weak ETag over count and newest timestamp; cheap because the list is
	// usually served from cache.
	var newest int64
	for i := range chats {
		if ts := chats[i].CreatedAt.Unix(); ts > newest {
			newest = ts
		}
	}
	etag := fmt.Sprintf(`W/"chats:%s:%d:%d"`, uid, len(chats), newest)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}

	ok(c, http.StatusOK, chats)
}

// GetChat godoc
// @ID          getChat
// @Summary     Fetch a chat
// @Description Returns a single chat with its full transcript. Only the owner sees it; others receive 404.
// @Tags        Chats
// @Produce     json
//
// @Param       Authorization  header  string  false "Bearer session token"
// @Param       id             path    string  true  "Chat ID"
//
// @Success     200  {object} domain.Chat
// @Failure     404  {object} handlers.ErrorResponse "Chat not found"
// @Router      /chats/{id} [get]
func (h *Handlers) GetChat(c *gin.Context) {
	chat := h.chats.GetChat(c.Request.Context(), c.Param("id"), userID(c))
	if chat == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
		return
	}
	ok(c, http.StatusOK, chat)
}

// GetSharedChat godoc
// @ID          getSharedChat
// @Summary     Fetch a shared chat
// @Description Returns a chat by ID if (and only if) it has been published for sharing. No authentication required.
// @Tags        Share
// @Produce     json
//
// @Param       id  path  string  true  "Chat ID"
//
// @Success     200  {object} domain.Chat
// @Failure     404  {object} handlers.ErrorResponse "Chat not found or not shared"
// @Router      /share/{id} [get]
func (h *Handlers) GetSharedChat(c *gin.Context) {
	chat := h.chats.GetSharedChat(c.Request.Context(), c.Param("id"))
	if chat == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
		return
	}
	ok(c, http.StatusOK, chat)
}

// RemoveChat godoc
// @ID          removeChat
// @Summary     Delete a chat
// @Description Deletes a chat owned by the current user. Deleting an already-absent chat succeeds.
// @Tags        Chats
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer session token"
// @Param       id             path    string  true  "Chat ID"
//
// @Success     204  {string} string "No Content"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chats/{id} [delete]
func (h *Handlers) RemoveChat(c *gin.Context) {
	id := c.Param("id")
	err := h.chats.RemoveChat(c.Request.Context(), session(c), id, domain.ChatPathFor(id))
	if err != nil {
		if errors.Is(err, repo.ErrUnauthorized) {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "unauthorized")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not delete chat")
		return
	}
	noContent(c)
}

// ClearChats godoc
// @ID          clearChats
// @Summary     Clear chat history
// @Description Drops the current user's chat history.
// @Tags        Chats
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer session token"
//
// @Success     204  {string} string "No Content"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Router      /chats [delete]
func (h *Handlers) ClearChats(c *gin.Context) {
	if err := h.chats.ClearChats(c.Request.Context(), session(c)); err != nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "unauthorized")
		return
	}
	noContent(c)
}

// ShareChat godoc
// @ID          shareChat
// @Summary     Share a chat
// @Description Publishes a share link for a chat owned by the current user and returns the updated chat. Sharing an already-shared chat is a no-op.
// @Tags        Share
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer session token"
// @Param       id             path    string  true  "Chat ID"
//
// @Success     200  {object} domain.Chat
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Share failed"
// @Router      /chats/{id}/share [post]
func (h *Handlers) ShareChat(c *gin.Context) {
	chat, err := h.chats.ShareChat(c.Request.Context(), session(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, repo.ErrUnauthorized) {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "unauthorized")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeShareFailed, "something went wrong")
		return
	}
	ok(c, http.StatusOK, chat)
}
