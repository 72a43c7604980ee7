// Package client is a Go client for the trailmap HTTP API.
//
//	c := client.New("http://localhost:8080", client.WithToken(idToken))
//	places, err := c.ListPlaces(ctx, client.PlaceFilter{Category: "hiking"})
//
// Errors returned by the API come back as *APIError; use errors.Is with the
// Err* sentinels to branch on the kind.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ReviewInterval is the minimum time between two successful CreateReview
// calls on one Client. The server does not enforce it.
const ReviewInterval = 6 * time.Second

var (
	ErrReviewThrottled = errors.New("client: review throttled")

	ErrValidation      = errors.New("validation_error")
	ErrUnauthenticated = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not_found")
	ErrConflict        = errors.New("conflict")
	ErrInternal        = errors.New("internal_error")
)

// ThrottleError is returned by CreateReview when the previous review was
// posted less than ReviewInterval ago. It matches ErrReviewThrottled.
type ThrottleError struct {
	Wait time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("client: review throttled, retry in %s", e.Wait.Round(time.Millisecond))
}

func (e *ThrottleError) Is(target error) bool {
	return target == ErrReviewThrottled
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int               `json:"-"`
	Kind       string            `json:"error"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: %d %s: %s", e.StatusCode, e.Kind, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrValidation, ErrUnauthenticated, ErrForbidden, ErrNotFound, ErrConflict, ErrInternal:
		return e.Kind == target.Error()
	}
	return false
}

type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time

	reviewMu   sync.Mutex
	lastReview time.Time
}

type Option func(*Client)

// WithToken sends token as "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.http)
		hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: token,
			TokenType:   "Bearer",
		}))
		hc.Timeout = c.http.Timeout
		c.http = hc
	}
}

// WithHTTPClient replaces the underlying HTTP client. Apply it before
// WithToken, which wraps whatever client is set at that point.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock replaces time.Now for the review throttle.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends in (JSON-encoded when non-nil) and decodes a 2xx body into out
// (skipped when out is nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("client: building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Kind = ErrInternal.Error()
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decoding %s %s response: %w", method, path, err)
	}
	return nil
}
