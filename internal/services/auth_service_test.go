package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nereus-ai/chat-backend/internal/auth"
	"github.com/nereus-ai/chat-backend/internal/domain"
)

// ----- Fake user store -----

type fakeUserStore struct {
	user *domain.User
	err  error

	gotEmail string
}

func (f *fakeUserStore) GetUser(ctx context.Context, email string) (*domain.User, error) {
	f.gotEmail = email
	return f.user, f.err
}

func newAuthService(us UserStore) *AuthService {
	return NewAuthService(us, auth.NewIssuer([]byte("test-secret"), time.Hour))
}

// ----- Tests -----

func TestLoginSuccess(t *testing.T) {
	us := &fakeUserStore{user: &domain.User{
		ID:       "u1",
		Email:    "ada@example.com",
		Password: auth.HashPassword("hunter22", "pepper"),
		Salt:     "pepper",
	}}
	s := newAuthService(us)

	token, err := s.Login(context.Background(), "ada@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	sess, err := s.Sessions.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if sess.UserID != "u1" || sess.Email != "ada@example.com" {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestLoginNormalizesEmail(t *testing.T) {
	us := &fakeUserStore{user: &domain.User{
		ID:       "u1",
		Email:    "ada@example.com",
		Password: auth.HashPassword("hunter22", "pepper"),
		Salt:     "pepper",
	}}
	s := newAuthService(us)

	if _, err := s.Login(context.Background(), "  Ada@Example.COM ", "hunter22"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if us.gotEmail != "ada@example.com" {
		t.Fatalf("store queried with %q, want normalized email", us.gotEmail)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	s := newAuthService(&fakeUserStore{})

	_, err := s.Login(context.Background(), "ghost@example.com", "whatever")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	us := &fakeUserStore{user: &domain.User{
		ID:       "u1",
		Email:    "ada@example.com",
		Password: auth.HashPassword("hunter22", "pepper"),
		Salt:     "pepper",
	}}
	s := newAuthService(us)

	_, err := s.Login(context.Background(), "ada@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginStoreErrorSurfaces(t *testing.T) {
	boom := errors.New("store down")
	s := newAuthService(&fakeUserStore{err: boom})

	_, err := s.Login(context.Background(), "ada@example.com", "hunter22")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the store error", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("store failure must not masquerade as invalid credentials")
	}
}
