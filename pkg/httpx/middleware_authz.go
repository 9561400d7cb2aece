package httpx

import (
	"net/http"
	"slices"
)

// RequireAnyRole lets the request through when the caller holds at least
// one of required.
func RequireAnyRole(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			have := rolesFromCtx(r.Context())
			for _, role := range required {
				if slices.Contains(have, role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			WriteError(w, http.StatusForbidden, "forbidden", "missing required role")
		})
	}
}

// RequireAllRoles lets the request through when the caller holds every role
// in required.
func RequireAllRoles(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			have := rolesFromCtx(r.Context())
			for _, role := range required {
				if !slices.Contains(have, role) {
					WriteError(w, http.StatusForbidden, "forbidden", "missing required role")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
