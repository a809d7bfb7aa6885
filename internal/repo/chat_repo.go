// Package repo implements the chat-history persistence façade: a bounded LRU
// cache composed with the document store, serving every chat read, write,
// delete, and share operation in the backend.
//
// Consistency contract:
//   - Reads are read-through: a cache miss fetches from the store and
//     populates the cache before returning.
//   - Saves are write-through: the store write completes first, then the
//     cache entry is overwritten with the new value, so a crash between the
//     two leaves the cache stale-but-safe, never ahead of the store.
//   - Deletes invalidate both the chat entry and the owner's chat-id list;
//     list entries are never patched in place, only rebuilt from the store.
//
// Error semantics:
//   - Read failures (list/get) are recovered locally: logged, and an empty
//     or nil result is returned. Availability is favored over strictness.
//   - SaveChat is fire-and-forget: a store-write failure is logged and never
//     surfaced; chat history may silently fail to persist.
//   - RemoveChat and ShareChat surface authorization failures as sentinel
//     errors and store I/O failures as raw errors (retryable by the caller).
package repo

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nereus-ai/chat-backend/internal/auth"
	"github.com/nereus-ai/chat-backend/internal/cache"
	"github.com/nereus-ai/chat-backend/internal/domain"
	"github.com/nereus-ai/chat-backend/internal/store"
)

// chatCollection is the document-store collection holding chat records.
const chatCollection = "chat"

var (
	// ErrUnauthorized is returned by mutating operations when the session is
	// absent or does not own the target chat.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrShareFailed is the generic failure for ShareChat: absent chat and
	// ownership mismatch are deliberately indistinguishable.
	ErrShareFailed = errors.New("something went wrong")
)

// ChatRepository composes the entity cache and the document store. It is the
// only component the rest of the backend uses for chat history. Construct it
// once at startup and share it; all methods are safe for concurrent use.
type ChatRepository struct {
	store store.Store
	cache *cache.LRU
	log   zerolog.Logger

	// pageSize bounds the recent-chats listing and its cached id list.
	pageSize int

	// revalidate, when set, is told about route paths whose rendered views
	// became stale after a mutation. Downstream concern; failures are its own.
	revalidate func(path string)
}

// NewChatRepository constructs the repository. pageSize values below 1 fall
// back to 30.
func NewChatRepository(s store.Store, c *cache.LRU, pageSize int, log zerolog.Logger) *ChatRepository {
	if pageSize < 1 {
		pageSize = 30
	}
	return &ChatRepository{store: s, cache: c, log: log, pageSize: pageSize}
}

// OnRevalidate registers a hook invoked with route paths invalidated by
// mutations (the chat's own path and the root listing).
func (r *ChatRepository) OnRevalidate(fn func(path string)) { r.revalidate = fn }

func (r *ChatRepository) revalidatePaths(paths ...string) {
	if r.revalidate == nil {
		return
	}
	for _, p := range paths {
		r.revalidate(p)
	}
}

// GetChats returns the user's recent chats, most recent first, bounded to the
// configured page size. An empty userID short-circuits to an empty slice with
// no store access. Store failures are logged and degrade to an empty slice.
func (r *ChatRepository) GetChats(ctx context.Context, userID string) []domain.Chat {
	ctx, span := r.span(ctx, "GetChats", attribute.String("user.id", userID))
	defer span.End()

	if userID == "" {
		return []domain.Chat{}
	}

	listKey := cache.ListKey(userID)
	if v, ok := r.cache.Get(listKey); ok {
		if ids, ok := v.([]string); ok {
			// A list hit does not guarantee every chat id is itself cached:
			// each one goes through the single-chat read-through path.
			chats := make([]domain.Chat, 0, len(ids))
			for _, id := range ids {
				if c := r.chatByID(ctx, id); c != nil {
					chats = append(chats, *c)
				}
			}
			return chats
		}
	}

	var chats []domain.Chat
	err := r.store.Query(ctx, chatCollection, store.Query{
		Field:      "userId",
		Equals:     userID,
		OrderBy:    "createdAt",
		Descending: true,
		Limit:      r.pageSize,
	}, &chats)
	if err != nil {
		r.log.Error().Err(err).Str("user_id", userID).Msg("list chats from store")
		return []domain.Chat{}
	}

	ids := make([]string, 0, len(chats))
	for i := range chats {
		c := chats[i]
		r.cache.Set(c.ID, &c)
		ids = append(ids, c.ID)
	}
	r.cache.Set(listKey, ids)
	if chats == nil {
		chats = []domain.Chat{}
	}
	return chats
}

// GetChat returns the chat with the given id, scoped to userID. Ownership
// mismatch and absence are indistinguishable: both return nil, so a caller
// can never probe for the existence of another user's chat. An empty userID
// skips the ownership check.
func (r *ChatRepository) GetChat(ctx context.Context, id, userID string) *domain.Chat {
	ctx, span := r.span(ctx, "GetChat", attribute.String("chat.id", id))
	defer span.End()

	chat := r.chatByID(ctx, id)
	if chat == nil || (userID != "" && chat.UserID != userID) {
		return nil
	}
	return chat
}

// GetSharedChat returns the chat only when it has been explicitly published
// for sharing. No ownership check: shared chats are public by design.
func (r *ChatRepository) GetSharedChat(ctx context.Context, id string) *domain.Chat {
	ctx, span := r.span(ctx, "GetSharedChat", attribute.String("chat.id", id))
	defer span.End()

	chat := r.chatByID(ctx, id)
	if !chat.Shared() {
		return nil
	}
	return chat
}

// SaveChat persists the full chat record (replace, not merge) and then
// overwrites the cache entry. Without an authenticated session the save is
// silently skipped; a store failure is logged and swallowed.
func (r *ChatRepository) SaveChat(ctx context.Context, sess *auth.Session, chat *domain.Chat) {
	ctx, span := r.span(ctx, "SaveChat")
	defer span.End()

	if sess == nil || sess.UserID == "" {
		return
	}
	if chat == nil || chat.ID == "" {
		return
	}
	span.SetAttributes(attribute.String("chat.id", chat.ID))

	if err := r.store.Set(ctx, chatCollection, chat.ID, chat); err != nil {
		r.log.Error().Err(err).Str("chat_id", chat.ID).Msg("save chat to store")
		return
	}
	r.cache.Set(chat.ID, chat)
}

// RemoveChat deletes the chat after verifying ownership against the store
// (the read cache is bypassed for the authoritative record). Deleting an id
// that does not exist succeeds silently. The owner's cached chat-id list is
// invalidated so the next listing rebuilds from the store.
func (r *ChatRepository) RemoveChat(ctx context.Context, sess *auth.Session, id, path string) error {
	ctx, span := r.span(ctx, "RemoveChat", attribute.String("chat.id", id))
	defer span.End()

	if sess == nil || sess.UserID == "" {
		return ErrUnauthorized
	}

	var chat domain.Chat
	err := r.store.Get(ctx, chatCollection, id, &chat)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Idempotent delete: nothing to remove.
	case err != nil:
		return err
	default:
		if chat.UserID != sess.UserID {
			return ErrUnauthorized
		}
		r.cache.Delete(id)
		r.cache.Delete(cache.ListKey(chat.UserID))
		if err := r.store.Delete(ctx, chatCollection, id); err != nil {
			return err
		}
	}

	r.revalidatePaths("/", path)
	return nil
}

// ClearChats empties the entire entity cache (chat entries and every user's
// list entry). The store-side bulk delete is not implemented: store documents
// are intentionally retained and only the cached view is forgotten.
func (r *ChatRepository) ClearChats(ctx context.Context, sess *auth.Session) error {
	_, span := r.span(ctx, "ClearChats")
	defer span.End()

	if sess == nil || sess.UserID == "" {
		return ErrUnauthorized
	}
	r.cache.Clear()
	r.log.Warn().Str("user_id", sess.UserID).Msg("clear chats: cache cleared; store-side bulk delete not implemented")
	r.revalidatePaths("/")
	return nil
}

// ShareChat publishes the chat under its share path. Requires ownership,
// verified against the store. The share path is persisted as a partial
// update, the cache entry is overwritten with the merged record, and the
// merged chat is returned. Sharing an already-shared chat is idempotent.
func (r *ChatRepository) ShareChat(ctx context.Context, sess *auth.Session, id string) (*domain.Chat, error) {
	ctx, span := r.span(ctx, "ShareChat", attribute.String("chat.id", id))
	defer span.End()

	if sess == nil || sess.UserID == "" {
		return nil, ErrUnauthorized
	}

	var chat domain.Chat
	err := r.store.Get(ctx, chatCollection, id, &chat)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrShareFailed
	case err != nil:
		return nil, err
	}
	if chat.UserID != sess.UserID {
		return nil, ErrShareFailed
	}

	sharePath := domain.SharePathFor(chat.ID)
	if err := r.store.Update(ctx, chatCollection, id, map[string]any{"sharePath": sharePath}); err != nil {
		return nil, err
	}
	chat.SharePath = sharePath
	r.cache.Set(chat.ID, &chat)
	return &chat, nil
}

// chatByID is the single-chat read-through path: cache hit returns
// immediately; a miss fetches from the store and populates the cache. Absence
// and store failure both come back as nil (failures are logged).
func (r *ChatRepository) chatByID(ctx context.Context, id string) *domain.Chat {
	if v, ok := r.cache.Get(id); ok {
		if chat, ok := v.(*domain.Chat); ok {
			return chat
		}
	}

	var chat domain.Chat
	err := r.store.Get(ctx, chatCollection, id, &chat)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		r.log.Error().Err(err).Str("chat_id", id).Msg("get chat from store")
		return nil
	}
	r.cache.Set(id, &chat)
	return &chat
}

// span starts a tracer span for a repository operation.
func (r *ChatRepository) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tr := otel.Tracer("repo/ChatRepository")
	return tr.Start(ctx, op, trace.WithAttributes(attrs...))
}
