package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/sessionkit/pkg/slogx"
)

// BearerQueryParam carries the credential on browser redirects that cannot
// set headers.
const BearerQueryParam = "bearer_token"

// Verifier checks a session credential.
type Verifier interface {
	Verify(ctx context.Context, token, password string) (Principal, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token, password string) (Principal, error)

func (f VerifierFunc) Verify(ctx context.Context, token, password string) (Principal, error) {
	return f(ctx, token, password)
}

// ParseBearer splits "token:password" into its parts.
func ParseBearer(credential string) (token, password string, ok bool) {
	token, password, ok = strings.Cut(strings.TrimSpace(credential), ":")
	if !ok || token == "" || password == "" {
		return "", "", false
	}
	return token, password, true
}

// BearerFromRequest returns the credential from the Authorization header or,
// failing that, the bearer_token query parameter.
func BearerFromRequest(r *http.Request) (string, bool) {
	if authz := r.Header.Get("Authorization"); authz != "" {
		scheme, credential, ok := strings.Cut(authz, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", false
		}
		return strings.TrimSpace(credential), true
	}
	if q := r.URL.Query().Get(BearerQueryParam); q != "" {
		return q, true
	}
	return "", false
}

// AuthnMiddleware rejects requests without a valid session credential and
// stores the caller's Principal in the request context.
func AuthnMiddleware(v Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			credential, ok := BearerFromRequest(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}
			token, password, ok := ParseBearer(credential)
			if !ok {
				writeBearerError(w, "malformed bearer token")
				return
			}

			p, err := v.Verify(ctx, token, password)
			if err != nil {
				log.Debug("bearer verification failed", "error", err)
				writeBearerError(w, "invalid session")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, p)))
		})
	}
}

func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "unauthorized", desc)
}
