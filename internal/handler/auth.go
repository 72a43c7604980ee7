package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/trailmap/internal/apperror"
	"github.com/sakif/trailmap/internal/auth"
	"github.com/sakif/trailmap/internal/model"
	"github.com/sakif/trailmap/internal/service"
)

const stateCookie = "oauth_state"

// AuthService is what AuthHandler needs; *service.AuthService satisfies it.
type AuthService interface {
	Login(ctx context.Context, idToken string) (*model.User, error)
	LoginGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*service.AuthResult, error)
	CurrentUser(ctx context.Context, id *auth.Identity) (*model.User, error)
}

// OAuthProvider runs the browser redirect flow; *auth.GitHubProvider satisfies it.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthHandler manages login and session endpoints.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLogin          → sync the user behind a provider-issued token
//   - HandleGitHubLogin    → redirect the browser to GitHub's authorization page
//   - HandleGitHubCallback → receive the code, sync the user, set the token cookie
//   - HandleLogout         → clear the token cookie
//   - HandleMe             → return the stored user for the current identity
//
// github is nil when no OAuth app is configured; the server then does not
// mount the GitHub routes.
type AuthHandler struct {
	auth   AuthService
	github OAuthProvider
	logger *slog.Logger
}

func NewAuthHandler(authSvc AuthService, github OAuthProvider, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   authSvc,
		github: github,
		logger: logger,
	}
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	IDToken string `json:"idToken"`
}

// HandleLogin verifies a provider token and returns the synced local user.
//
// HTTP: POST /auth/login
// BODY: {"idToken":"eyJ…"}
//
// Missing body or field → 400. Token present but not valid → 401.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.IDToken == "" {
		writeError(w, apperror.ValidationFailed("idToken", "idToken is required"))
		return
	}

	user, err := h.auth.Login(r.Context(), req.IDToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// A random state goes into a short-lived HttpOnly cookie and into the
// authorization URL; the callback rejects any request where the two differ.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub profile
//  3. Sync the user and issue a token carrying the stored role
//  4. Store the token in an HttpOnly cookie and redirect home
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}
	if r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// single-use
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		writeError(w, apperror.Unauthenticated("authentication failed"))
		return
	}

	res, err := h.auth.LoginGitHub(r.Context(), ghUser)
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    res.Token,
		Path:     "/",
		MaxAge:   int(auth.DefaultTokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the token cookie. The token itself stays valid until it
// expires; without the cookie the browser just stops sending it.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the stored user behind the request's identity.
//
// HTTP: GET /auth/me
// Auth: required (Gate.Require puts the identity in the context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated("authentication required"))
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
