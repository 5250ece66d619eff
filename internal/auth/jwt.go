// Package auth provides bearer-token issuing/validation, password hashing and
// the middleware that authenticates API requests.
//
// AUTHENTICATION FLOW:
//  1. POST /api/users/register or /api/users/login checks the credentials
//  2. The server issues a signed JWT and returns it in the response body
//  3. The client sends it back on every call: Authorization: Bearer <jwt>
//  4. RequireAuth validates it and stores the user id in the request context
//  5. Every repository call is scoped by that user id
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<userID>","name":"...","email":"...","iss":"...","aud":["..."]}
//	- Signature: HMAC-SHA256(header+"."+payload, key)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinKeyLength is the shortest HMAC key NewTokenService accepts.
const MinKeyLength = 16

// TokenConfig configures a TokenService.
//
// TTL of zero issues tokens without an "exp" claim; they stay valid until the
// signing key is rotated.
type TokenConfig struct {
	Key      string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// TokenService handles JWT creation and validation.
type TokenService struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenService creates a TokenService from cfg.
// Example key: JWT_KEY=$(openssl rand -hex 32)
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Key) < MinKeyLength {
		return nil, fmt.Errorf("auth: JWT key must be at least %d characters", MinKeyLength)
	}
	if cfg.Issuer == "" {
		return nil, errors.New("auth: JWT issuer must not be empty")
	}
	if cfg.Audience == "" {
		return nil, errors.New("auth: JWT audience must not be empty")
	}
	if cfg.TTL < 0 {
		return nil, errors.New("auth: JWT TTL must not be negative")
	}
	return &TokenService{
		key:      []byte(cfg.Key),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
		now:      time.Now,
	}, nil
}

// Identity is what a token says about its bearer.
type Identity struct {
	UserID string
	Name   string
	Email  string
}

// claims is the JWT payload. The user id lives in the registered "sub" claim;
// name and email are private claims carried for clients that decode the token.
type claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Generate creates and signs a token for the given identity.
func (s *TokenService) Generate(id Identity) (string, error) {
	return s.generate(id, s.ttl)
}

func (s *TokenService) generate(id Identity, ttl time.Duration) (string, error) {
	if id.UserID == "" {
		return "", errors.New("auth: cannot issue a token without a user id")
	}

	now := s.now()
	c := claims{
		Name:  id.Name,
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  id.UserID,
			Issuer:   s.issuer,
			Audience: jwt.ClaimStrings{s.audience},
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl != 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string and returns the identity it
// carries.
//
// The jwt library checks the signature, "exp" when present, the issuer and
// the audience. WithValidMethods pins HS256 so a token with alg "none" or an
// asymmetric algorithm is rejected before the key is ever used.
func (s *TokenService) Validate(tokenStr string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, errors.New("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, errors.New("auth: token has no subject")
	}

	return &Identity{
		UserID: c.Subject,
		Name:   c.Name,
		Email:  c.Email,
	}, nil
}
