// Package auth implements the session layer: JWT issuance and verification,
// and password verification against the persisted credential scheme.
//
// A Session is the unit the rest of the backend consumes. Mutating repository
// operations take a *Session and treat nil as "anonymous"; handlers obtain
// the session from the request context where the middleware put it.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session identifies an authenticated user for the duration of a request.
type Session struct {
	UserID string
	Email  string
}

// ErrInvalidToken is returned by Verify for expired, malformed, or
// wrongly-signed tokens.
var ErrInvalidToken = errors.New("invalid session token")

// Issuer mints and verifies HS256 session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer constructs an Issuer. A non-positive ttl defaults to 24h.
func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: secret, ttl: ttl}
}

// Issue signs a token for the given user.
func (i *Issuer) Issue(userID, email string) (string, error) {
	if userID == "" {
		return "", errors.New("user id must not be empty")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(i.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify parses and validates a token, returning the session it encodes.
func (i *Issuer) Verify(tokenString string) (*Session, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrInvalidToken
	}
	email, _ := claims["email"].(string)
	return &Session{UserID: sub, Email: email}, nil
}
