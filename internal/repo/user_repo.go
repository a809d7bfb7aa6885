// User lookups for the login path.
//
// Users live in the "user" collection keyed by email address. This service
// only ever reads them; account creation belongs to another system.
package repo

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/nereus-ai/chat-backend/internal/domain"
	"github.com/nereus-ai/chat-backend/internal/store"
)

// userCollection is the document-store collection holding account records.
const userCollection = "user"

// UserRepository reads account records from the document store.
type UserRepository struct {
	store store.Store
	log   zerolog.Logger
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(s store.Store, log zerolog.Logger) *UserRepository {
	return &UserRepository{store: s, log: log}
}

// GetUser fetches the account for email. An unknown email returns (nil, nil):
// the caller treats it exactly like a bad password, so existence never leaks.
// Store failures are returned as errors.
func (r *UserRepository) GetUser(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.store.Get(ctx, userCollection, email, &u)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, nil
	case err != nil:
		r.log.Error().Err(err).Msg("get user from store")
		return nil, err
	}
	return &u, nil
}
