package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/oauth2/clientcredentials"
)

// CustomClaims are the claims this service manages on the identity provider.
// The provider copies them into every identity token it issues afterwards.
type CustomClaims struct {
	Role string `json:"role,omitempty"`
}

// ClaimsManager reads and writes a subject's custom claims at the identity
// provider.
type ClaimsManager interface {
	Claims(ctx context.Context, subject string) (CustomClaims, error)
	SetClaims(ctx context.Context, subject string, c CustomClaims) error
}

// AdminClient talks to the provider's user-admin REST API:
//
//	GET {base}/users/{subject}/claims   → 200 {"role":"admin"} | 404 (no claims yet)
//	PUT {base}/users/{subject}/claims   ← {"role":"admin"}     → 200 | 204
//
// CLIENT CREDENTIALS:
// There is no user in the loop here; the service authenticates as itself.
// clientcredentials.Config.Client returns an *http.Client that fetches a token
// from the token endpoint, caches it, refreshes it on expiry and adds
// "Authorization: Bearer …" to every request.
type AdminClient struct {
	baseURL string
	http    *http.Client
}

var _ ClaimsManager = (*AdminClient)(nil)

// NewAdminClient builds an AdminClient. ctx scopes the token fetches; pass a
// long-lived context (the server's), not a request context.
func NewAdminClient(ctx context.Context, baseURL, tokenURL, clientID, clientSecret string) *AdminClient {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	return &AdminClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    cfg.Client(ctx),
	}
}

func (c *AdminClient) claimsURL(subject string) string {
	// Subjects such as "github|42" need escaping.
	return c.baseURL + "/users/" + url.PathEscape(subject) + "/claims"
}

func (c *AdminClient) Claims(ctx context.Context, subject string) (CustomClaims, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.claimsURL(subject), nil)
	if err != nil {
		return CustomClaims{}, fmt.Errorf("auth: building claims request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return CustomClaims{}, fmt.Errorf("auth: reading claims of %s: %w", subject, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return CustomClaims{}, nil
	default:
		return CustomClaims{}, fmt.Errorf("auth: reading claims of %s: %s", subject, statusError(resp))
	}

	var out CustomClaims
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return CustomClaims{}, fmt.Errorf("auth: decoding claims of %s: %w", subject, err)
	}
	return out, nil
}

func (c *AdminClient) SetClaims(ctx context.Context, subject string, claims CustomClaims) error {
	body, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("auth: encoding claims: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.claimsURL(subject), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("auth: building claims request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("auth: writing claims of %s: %w", subject, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("auth: writing claims of %s: %s", subject, statusError(resp))
	}
	return nil
}

func statusError(resp *http.Response) string {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if len(msg) == 0 {
		return resp.Status
	}
	return resp.Status + ": " + strings.TrimSpace(string(msg))
}

// MemoryClaims keeps claims in process memory. The server uses it when no
// admin API is configured, so the reconciliation still runs and is observable
// in logs.
type MemoryClaims struct {
	mu     sync.Mutex
	claims map[string]CustomClaims
}

var _ ClaimsManager = (*MemoryClaims)(nil)

func NewMemoryClaims() *MemoryClaims {
	return &MemoryClaims{claims: make(map[string]CustomClaims)}
}

func (m *MemoryClaims) Claims(_ context.Context, subject string) (CustomClaims, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claims[subject], nil
}

func (m *MemoryClaims) SetClaims(_ context.Context, subject string, c CustomClaims) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims[subject] = c
	return nil
}
