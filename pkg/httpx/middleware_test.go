package httpx_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/sessionkit/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestParseBearer(t *testing.T) {
	t.Parallel()

	token, password, ok := httpx.ParseBearer("abc123:mypass")
	require.True(t, ok)
	require.Equal(t, "abc123", token)
	require.Equal(t, "mypass", password)

	for _, bad := range []string{"", "abc123", ":mypass", "abc123:"} {
		_, _, ok := httpx.ParseBearer(bad)
		require.False(t, ok, bad)
	}
}

func TestAuthnMiddleware(t *testing.T) {
	t.Parallel()

	verifier := httpx.VerifierFunc(func(_ context.Context, token, password string) (httpx.Principal, error) {
		if token == "abc123" && password == "mypass" {
			return httpx.Principal{UserID: "superuser", Roles: []string{"user"}}, nil
		}
		return httpx.Principal{}, errors.New("bad credential")
	})

	h := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := httpx.PrincipalFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"user_id": p.UserID})
	}), httpx.AuthnMiddleware(verifier))

	tests := []struct {
		name   string
		target string
		header string
		code   int
	}{
		{"header credential", "/api", "Bearer abc123:mypass", http.StatusOK},
		{"query credential", "/api?bearer_token=abc123:mypass", "", http.StatusOK},
		{"missing", "/api", "", http.StatusUnauthorized},
		{"wrong scheme", "/api", "Basic abc", http.StatusUnauthorized},
		{"malformed", "/api", "Bearer abc123", http.StatusUnauthorized},
		{"wrong password", "/api", "Bearer abc123:nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusUnauthorized {
				require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
			}
		})
	}
}

func TestRequireRoles(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	withRoles := func(roles ...string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		return req.WithContext(httpx.WithPrincipal(req.Context(), httpx.Principal{UserID: "u", Roles: roles}))
	}
	serve := func(h http.Handler, req *http.Request) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	anyRole := httpx.RequireAnyRole("admin", "owner")(ok)
	require.Equal(t, http.StatusNoContent, serve(anyRole, withRoles("user", "owner")))
	require.Equal(t, http.StatusForbidden, serve(anyRole, withRoles("user")))

	allRoles := httpx.RequireAllRoles("user", "admin")(ok)
	require.Equal(t, http.StatusNoContent, serve(allRoles, withRoles("admin", "user")))
	require.Equal(t, http.StatusForbidden, serve(allRoles, withRoles("user")))
	require.Equal(t, http.StatusForbidden, serve(allRoles, httptest.NewRequest(http.MethodGet, "/", nil)))
}
