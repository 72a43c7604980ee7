package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const gitHubUserURL = "https://api.github.com/user"

// GitHubUser is the part of GitHub's /user response we keep.
type GitHubUser struct {
	ID        int64  `json:"id"` // stable, unlike Login
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"` // empty when hidden in GitHub settings
	AvatarURL string `json:"avatar_url"`
}

// Subject is the identity subject GitHub users are stored under.
func (u *GitHubUser) Subject() string {
	return "github|" + strconv.FormatInt(u.ID, 10)
}

// Identity converts the profile into an Identity without a role; the role
// comes from the stored user.
func (u *GitHubUser) Identity() Identity {
	name := u.Name
	if name == "" {
		name = u.Login
	}
	return Identity{
		Subject: u.Subject(),
		Email:   u.Email,
		Name:    name,
		Picture: u.AvatarURL,
	}
}

// GitHubProvider runs the Authorization Code flow against GitHub.
//
//  1. AuthURL sends the browser to GitHub with our client id and a state value.
//  2. GitHub redirects back to the callback with a one-time code.
//  3. Exchange trades the code for an access token server-to-server (the
//     client secret never reaches the browser) and fetches the profile.
type GitHubProvider struct {
	config  *oauth2.Config
	userURL string
}

// NewGitHubProvider creates a GitHubProvider. callbackURL must match the
// OAuth App's "Authorization callback URL" exactly,
// e.g. "http://localhost:8080/auth/github/callback".
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		userURL: gitHubUserURL,
	}
}

// AuthURL returns the GitHub authorization URL. state must also be stored in a
// cookie so the callback can reject forged requests (CSRF).
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange completes the flow and returns the GitHub profile.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*GitHubUser, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// The returned client adds "Authorization: Bearer <token>" to every request.
	client := p.config.Client(ctx, oauthToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building GitHub /user request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling GitHub /user API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: GitHub /user API returned status %d", resp.StatusCode)
	}

	var ghUser GitHubUser
	if err := json.NewDecoder(resp.Body).Decode(&ghUser); err != nil {
		return nil, fmt.Errorf("auth: decoding GitHub /user response: %w", err)
	}
	if ghUser.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}

	return &ghUser, nil
}
