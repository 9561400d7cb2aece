// Package httpx holds the server-side HTTP helpers shared by the test auth
// server and the OAuth callback listener: JSON responses in the auth
// service's error format, bearer authentication, role checks and rate
// limiting.
package httpx

import "net/http"

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Chain applies mws to h so the first middleware is outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
