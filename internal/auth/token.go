// Package auth is the Access Gate: it verifies identity tokens, enforces the
// admin role on mutating routes, and keeps the identity provider's custom
// claims in step with the role stored locally.
//
// IDENTITY TOKENS:
// An identity token is an HS256 JWT. Besides the registered claims it carries
// the caller's role and profile:
//
//	{"iss":"trailmap","sub":"github|42","exp":…,"role":"admin",
//	 "email":"octo@example.com","name":"Octo","picture":"https://…"}
//
// The provider signs tokens for its own logins; the GitHub login flow in this
// package signs them itself with the same secret. Either way the server
// verifies with the secret alone, no database lookup.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/trailmap/internal/apperror"
	"github.com/sakif/trailmap/internal/model"
)

// DefaultTokenTTL is the lifetime of tokens issued by Generate.
const DefaultTokenTTL = time.Hour

// Identity is what a verified token says about the caller.
type Identity struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// IsAdmin reports whether the identity carries the admin role.
func (id Identity) IsAdmin() bool {
	return id.Role == model.RoleAdmin
}

// Verifier turns a raw token into an Identity.
// Implementations return an apperror.ErrUnauthenticated error for any token
// they do not accept.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// TokenService signs and verifies identity tokens with one shared secret.
type TokenService struct {
	secret []byte
	issuer string
}

var _ Verifier = (*TokenService)(nil)

// NewTokenService creates a TokenService. The secret must be at least 16
// characters; generate one with: openssl rand -hex 32
func NewTokenService(secret, issuer string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: identity secret must be at least 16 characters")
	}
	if issuer == "" {
		return nil, errors.New("auth: identity issuer is required")
	}
	return &TokenService{secret: []byte(secret), issuer: issuer}, nil
}

type claims struct {
	jwt.RegisteredClaims
	Role    string `json:"role,omitempty"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Generate signs a token for id that expires after DefaultTokenTTL.
func (s *TokenService) Generate(id Identity) (string, error) {
	return s.GenerateWithDuration(id, DefaultTokenTTL)
}

// GenerateWithDuration signs a token with a custom lifetime. Tests use a
// negative duration to get an already-expired token.
func (s *TokenService) GenerateWithDuration(id Identity, d time.Duration) (string, error) {
	if id.Subject == "" {
		return "", errors.New("auth: identity has no subject")
	}
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    s.issuer,
		},
		Role:    id.Role,
		Email:   id.Email,
		Name:    id.Name,
		Picture: id.Picture,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer and expiry, then returns the
// identity. A token without a role claim is an ordinary user.
//
// ALGORITHM CONFUSION:
// WithValidMethods pins HS256, so a token whose header says "none" (or an
// asymmetric algorithm keyed with our secret as a "public key") is rejected
// before the signature is even looked at.
func (s *TokenService) Verify(tokenStr string) (Identity, error) {
	if tokenStr == "" {
		return Identity{}, apperror.Unauthenticated("identity token required")
	}

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, apperror.Unauthenticated("identity token expired")
		}
		return Identity{}, apperror.Unauthenticated("invalid identity token")
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.Subject == "" {
		return Identity{}, apperror.Unauthenticated("invalid identity token")
	}

	role := c.Role
	if role == "" {
		role = model.RoleUser
	}

	return Identity{
		Subject: c.Subject,
		Role:    role,
		Email:   c.Email,
		Name:    c.Name,
		Picture: c.Picture,
	}, nil
}
