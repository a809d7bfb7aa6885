// Idempotency records for safe retries of message posts.
//
// A record marks an (userID, chatID, key) tuple as already processed so a
// network retry does not append the same message twice. Records live in the
// "idempotency" collection of the document store under a composite document
// id, with coarse TTL semantics enforced at read time.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nereus-ai/chat-backend/internal/store"
)

// idempotencyCollection is the document-store collection for retry records.
const idempotencyCollection = "idempotency"

// Idempotency is a recorded result of a previously processed request.
type Idempotency struct {
	ID        string    `json:"id"        dynamodbav:"id"`
	UserID    string    `json:"userId"    dynamodbav:"userId"`
	ChatID    string    `json:"chatId"    dynamodbav:"chatId"`
	Key       string    `json:"key"       dynamodbav:"key"`
	MessageID string    `json:"messageId" dynamodbav:"messageId"`
	Status    int       `json:"status"    dynamodbav:"status"`
	CreatedAt time.Time `json:"createdAt" dynamodbav:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt" dynamodbav:"expiresAt"`
}

// IdempotencyRepository persists retry records in the document store.
type IdempotencyRepository struct {
	store store.Store
	log   zerolog.Logger
	ttl   time.Duration
}

// NewIdempotencyRepository constructs the repository; ttl bounds how long a
// key stays valid.
func NewIdempotencyRepository(s store.Store, ttl time.Duration, log zerolog.Logger) *IdempotencyRepository {
	return &IdempotencyRepository{store: s, ttl: ttl, log: log}
}

// docID builds the composite document id for a record.
func docID(userID, chatID, key string) string {
	return userID + "#" + chatID + "#" + key
}

// Get returns the non-expired record for the tuple, or nil when absent or
// expired. Store failures are treated as absence (a retry is cheaper than a
// refused request) and logged.
func (r *IdempotencyRepository) Get(ctx context.Context, userID, chatID, key string, now time.Time) *Idempotency {
	if chatID == "" || key == "" {
		return nil
	}
	var rec Idempotency
	err := r.store.Get(ctx, idempotencyCollection, docID(userID, chatID, key), &rec)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		r.log.Error().Err(err).Msg("get idempotency record")
		return nil
	}
	if now.After(rec.ExpiresAt) {
		return nil
	}
	return &rec
}

// Put records a processed request. Failures are logged and swallowed: losing
// a record only means a retry re-executes, which the message flow tolerates.
func (r *IdempotencyRepository) Put(ctx context.Context, userID, chatID, key, messageID string, status int) {
	now := time.Now().UTC()
	rec := Idempotency{
		ID:        uuid.NewString(),
		UserID:    userID,
		ChatID:    chatID,
		Key:       key,
		MessageID: messageID,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}
	if err := r.store.Set(ctx, idempotencyCollection, docID(userID, chatID, key), rec); err != nil {
		r.log.Error().Err(err).Msg("put idempotency record")
	}
}
