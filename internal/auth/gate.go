package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/trailmap/internal/apperror"
)

// TokenCookie is the HttpOnly cookie the GitHub login flow stores the
// identity token in.
const TokenCookie = "token"

type contextKey string

const identityKey contextKey = "identity"

// Gate is the HTTP face of the Access Gate.
type Gate struct {
	verifier Verifier
}

func NewGate(v Verifier) *Gate {
	return &Gate{verifier: v}
}

// Require returns middleware that admits only callers holding role.
// An empty role admits any authenticated caller.
//
//	missing / invalid token → 401
//	valid token, wrong role → 403
//
// The identity is stored in the request context for handlers
// (IdentityFromContext).
func (g *Gate) Require(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := g.Authenticate(r)
			if err == nil {
				err = RequireRole(&id, role)
			}
			if err != nil {
				writeGateError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// Optional attaches the identity when a valid token is present and lets the
// request through either way.
func (g *Gate) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := g.Authenticate(r); err == nil {
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// Authenticate verifies the token carried by r.
func (g *Gate) Authenticate(r *http.Request) (Identity, error) {
	token, ok := TokenFromRequest(r)
	if !ok {
		return Identity{}, apperror.Unauthenticated("identity token required")
	}
	return g.verifier.Verify(token)
}

// TokenFromRequest reads "Authorization: Bearer <token>", falling back to the
// token cookie. The header wins when both are present.
func TokenFromRequest(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, found := strings.Cut(h, " ")
		if found && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token), true
		}
		return "", false
	}

	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

// RequireRole is the service-side half of the gate. A nil identity is an
// anonymous caller. An empty role only requires authentication.
func RequireRole(id *Identity, role string) error {
	if id == nil || id.Subject == "" {
		return apperror.Unauthenticated("identity token required")
	}
	if role != "" && id.Role != role {
		return apperror.Forbidden(role + " role required")
	}
	return nil
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller's identity, or (nil, false) for an
// anonymous request.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok {
		return nil, false
	}
	return &id, true
}

// writeGateError renders the same error body as the handler package. It lives
// here because handler imports auth, not the other way round.
func writeGateError(w http.ResponseWriter, err error) {
	status, kind := http.StatusUnauthorized, "unauthorized"
	if errors.Is(err, apperror.ErrForbidden) {
		status, kind = http.StatusForbidden, "forbidden"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(map[string]string{
		"error":   kind,
		"message": err.Error(),
	}); encErr != nil {
		slog.Error("failed to encode JSON response", slog.String("error", encErr.Error()))
	}
}
