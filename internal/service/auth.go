package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/trailmap/internal/apperror"
	"github.com/sakif/trailmap/internal/auth"
	"github.com/sakif/trailmap/internal/model"
	"github.com/sakif/trailmap/internal/repository"
)

// DefaultUserName is stored for identities that carry no display name.
const DefaultUserName = "Anonymous"

// AuthService keeps local users in step with the identity provider.
//
//	AuthHandler → AuthService → UserRepository
//	                          ↘ Verifier (token check)
//	                          ↘ ClaimsManager (provider-side role claim)
//	                          ↘ TokenService (tokens for the GitHub flow)
//
// ROLE AUTHORITY:
// The role stored on the user row is the source of truth. It is changed
// out-of-band (cmd/setrole). Every login pushes it into the provider's custom
// claims when they differ, so the provider's next token carries it.
type AuthService struct {
	users    repository.UserRepository
	verifier auth.Verifier
	tokens   *auth.TokenService
	claims   auth.ClaimsManager
	metrics  Recorder
	logger   *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	verifier auth.Verifier,
	tokens *auth.TokenService,
	claims auth.ClaimsManager,
	metrics Recorder,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		verifier: verifier,
		tokens:   tokens,
		claims:   claims,
		metrics:  recorderOrNoop(metrics),
		logger:   logger,
	}
}

// AuthResult bundles the user and a freshly issued token so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Login verifies a provider-issued identity token and syncs the user.
// A token that fails verification is an ErrUnauthenticated error; a store
// failure is returned wrapped (500).
func (s *AuthService) Login(ctx context.Context, idToken string) (*model.User, error) {
	id, err := s.verifier.Verify(strings.TrimSpace(idToken))
	if err != nil {
		return nil, err
	}

	user, _, err := s.sync(ctx, id, "token")
	return user, err
}

// LoginGitHub syncs the user behind a completed GitHub OAuth flow and issues
// our own identity token carrying the stored role.
func (s *AuthService) LoginGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	id := ghUser.Identity()
	user, _, err := s.sync(ctx, id, "github")
	if err != nil {
		return nil, err
	}

	id.Role = user.Role
	id.Name = user.Name
	token, err := s.tokens.Generate(id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	return &AuthResult{User: user, Token: token}, nil
}

// CurrentUser returns the stored user behind a verified identity.
func (s *AuthService) CurrentUser(ctx context.Context, id *auth.Identity) (*model.User, error) {
	if err := auth.RequireRole(id, ""); err != nil {
		return nil, err
	}
	return s.users.GetUserByExternalID(ctx, id.Subject)
}

// sync finds or lazily creates the user for id, refreshes the profile fields
// when they changed, and reconciles the provider's role claim.
func (s *AuthService) sync(ctx context.Context, id auth.Identity, provider string) (*model.User, bool, error) {
	user, created, err := s.findOrCreate(ctx, id)
	if err != nil {
		return nil, false, err
	}

	if !created && profileChanged(user, id) {
		applyProfile(user, id)
		if err := s.users.UpdateUserProfile(ctx, user); err != nil {
			return nil, false, fmt.Errorf("service/auth: updating profile of %s: %w", user.ID, err)
		}
	}

	s.reconcileClaims(ctx, user)

	s.metrics.UserLoggedIn(provider, created)
	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.String("externalID", user.ExternalID),
		slog.String("provider", provider),
		slog.Bool("created", created),
	)

	return user, created, nil
}

func (s *AuthService) findOrCreate(ctx context.Context, id auth.Identity) (*model.User, bool, error) {
	user, err := s.users.GetUserByExternalID(ctx, id.Subject)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, false, fmt.Errorf("service/auth: looking up %s: %w", id.Subject, err)
	}

	user = &model.User{ExternalID: id.Subject, Role: model.RoleUser}
	applyProfile(user, id)

	err = s.users.CreateUser(ctx, user)
	if errors.Is(err, apperror.ErrConflict) {
		// A concurrent first login for the same subject won the insert.
		existing, getErr := s.users.GetUserByExternalID(ctx, id.Subject)
		if getErr == nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return nil, false, fmt.Errorf("service/auth: creating user %s: %w", id.Subject, err)
	}

	return user, true, nil
}

// reconcileClaims pushes {role: stored role} to the provider only when its
// claims disagree. A provider failure is logged, not returned: the stored role
// still governs this session and the next login retries.
func (s *AuthService) reconcileClaims(ctx context.Context, user *model.User) {
	if s.claims == nil {
		return
	}

	current, err := s.claims.Claims(ctx, user.ExternalID)
	if err != nil {
		s.logger.Warn("reading provider claims failed",
			slog.String("externalID", user.ExternalID),
			slog.String("error", err.Error()),
		)
		return
	}
	if current.Role == user.Role {
		return
	}

	if err := s.claims.SetClaims(ctx, user.ExternalID, auth.CustomClaims{Role: user.Role}); err != nil {
		s.logger.Warn("updating provider claims failed",
			slog.String("externalID", user.ExternalID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("provider role claim updated",
		slog.String("externalID", user.ExternalID),
		slog.String("from", current.Role),
		slog.String("to", user.Role),
	)
}

func displayName(id auth.Identity) string {
	if name := strings.TrimSpace(id.Name); name != "" {
		return name
	}
	return DefaultUserName
}

func profileChanged(u *model.User, id auth.Identity) bool {
	return u.Name != displayName(id) || u.Email != id.Email || u.AvatarURL != id.Picture
}

func applyProfile(u *model.User, id auth.Identity) {
	u.Name = displayName(id)
	u.Email = id.Email
	u.AvatarURL = id.Picture
}
