package httpx

import "context"

// Principal is the caller authenticated by AuthnMiddleware.
type Principal struct {
	UserID    string
	SessionID string
	Roles     []string
}

type ctxKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

func rolesFromCtx(ctx context.Context) []string {
	p, _ := PrincipalFromContext(ctx)
	return p.Roles
}
