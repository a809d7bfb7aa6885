// Package services – AuthService
//
// This file implements AuthService, which verifies account credentials against
// the user repository and mints signed session tokens. Password verification
// supports both the PBKDF2 scheme and the legacy salted-SHA-256 records that
// older accounts still carry.
//
// Observability: Login is OpenTelemetry-instrumented; spans carry the
// normalized email and the outcome.
package services

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nereus-ai/chat-backend/internal/auth"
	"github.com/nereus-ai/chat-backend/internal/domain"
)

// UserStore defines the repository contract required by AuthService.
type UserStore interface {
	// GetUser fetches an account by email. A nil user with a nil error means
	// the email is unknown.
	GetUser(ctx context.Context, email string) (*domain.User, error)
}

// AuthService verifies credentials and issues session tokens.
type AuthService struct {
	// Users is the account repository.
	Users UserStore
	// Sessions mints and verifies signed session tokens.
	Sessions *auth.Issuer
}

// NewAuthService constructs an AuthService.
func NewAuthService(users UserStore, issuer *auth.Issuer) *AuthService {
	return &AuthService{Users: users, Sessions: issuer}
}

// Login verifies the email/password pair and returns a signed session token.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials so the
// response never reveals whether an account exists. Any other error is a
// repository or signing failure and should be treated as unexpected.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "Login",
		trace.WithAttributes(attribute.String("user.email", email)),
	)
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.Users.GetUser(ctx, email)
	if err != nil {
		return "", err
	}
	if u == nil {
		span.SetAttributes(attribute.String("login.outcome", "unknown_email"))
		return "", ErrInvalidCredentials
	}
	if !auth.VerifyPassword(u.Password, password, u.Salt) {
		span.SetAttributes(attribute.String("login.outcome", "bad_password"))
		return "", ErrInvalidCredentials
	}

	token, err := s.Sessions.Issue(u.ID, u.Email)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("login.outcome", "success"))
	return token, nil
}
