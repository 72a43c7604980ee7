// Run with: go test ./internal/handler/ -v
package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/trailmap/internal/auth"
	"github.com/sakif/trailmap/internal/handler"
	"github.com/sakif/trailmap/internal/model"
	"github.com/sakif/trailmap/internal/repository/sqlite"
	"github.com/sakif/trailmap/internal/service"
)

// =========================================================================
// TEST ENVIRONMENT
// =========================================================================
//
// The handlers run on top of the real services and an in-memory SQLite store,
// routed through chi exactly like the server does it. Only the GitHub side of
// the OAuth flow is faked (fakeOAuth).

const testSecret = "handler-test-secret-0123456789"

type testEnv struct {
	router http.Handler
	store  *sqlite.DB
	tokens *auth.TokenService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, github handler.OAuthProvider) *testEnv {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tokens, err := auth.NewTokenService(testSecret, "trailmap-test")
	require.NoError(t, err)

	logger := discardLogger()
	aggregator := service.NewRatingAggregator(store, store, nil, logger)

	places := handler.NewPlaceHandler(service.NewPlaceService(store, store, nil, nil, logger), logger)
	reviews := handler.NewReviewHandler(service.NewReviewService(store, store, aggregator, nil, nil, logger), logger)
	authH := handler.NewAuthHandler(
		service.NewAuthService(store, tokens, tokens, auth.NewMemoryClaims(), nil, logger),
		github,
		logger,
	)
	gate := auth.NewGate(tokens)

	r := chi.NewRouter()
	r.Get("/places", places.HandleList)
	r.Get("/places/{id}", places.HandleGet)
	r.With(gate.Require(model.RoleAdmin)).Post("/places", places.HandleCreate)
	r.With(gate.Require(model.RoleAdmin)).Delete("/places/{id}", places.HandleDelete)
	r.Get("/reviews", reviews.HandleList)
	r.Post("/reviews", reviews.HandleCreate)
	r.Post("/auth/login", authH.HandleLogin)
	r.Post("/auth/logout", authH.HandleLogout)
	r.With(gate.Require("")).Get("/auth/me", authH.HandleMe)
	if github != nil {
		r.Get("/auth/github/login", authH.HandleGitHubLogin)
		r.Get("/auth/github/callback", authH.HandleGitHubCallback)
	}

	return &testEnv{router: r, store: store, tokens: tokens}
}

func (e *testEnv) token(t *testing.T, subject, role string) string {
	t.Helper()
	tok, err := e.tokens.Generate(auth.Identity{Subject: subject, Role: role, Name: "Tester"})
	require.NoError(t, err)
	return tok
}

// do sends one request through the router. body may be nil, a string (sent
// verbatim) or any value (JSON-encoded).
func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func validPlaceBody() map[string]any {
	return map[string]any{
		"name":        "Koli National Park",
		"description": "Hills above Lake Pielinen",
		"category":    []string{"hiking"},
		"position":    []float64{63.09, 29.81},
		"address":     "Ylä-Kolintie 39",
		"city":        "Koli",
		"country":     "Finland",
	}
}

func (e *testEnv) createPlace(t *testing.T, body map[string]any) model.Place {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/places", body, e.token(t, "admin|1", model.RoleAdmin))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.Place](t, rec)
}
