// Package authtest runs an in-process auth service speaking the same REST
// protocol as the real one. Sessions are HS256 JWTs paired with a random
// session password; user passwords are argon2id hashed. It is meant for
// tests of code built on authsdk, not for production use.
package authtest

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/aussiebroadwan/sessionkit/pkg/clock"
	"github.com/aussiebroadwan/sessionkit/pkg/cryptox"
	"github.com/aussiebroadwan/sessionkit/pkg/httpx"
	"github.com/aussiebroadwan/sessionkit/pkg/idx"
	"github.com/aussiebroadwan/sessionkit/pkg/session"
	"github.com/aussiebroadwan/sessionkit/pkg/slogx"
)

// DefaultTokenTTL is the lifetime of issued session tokens.
const DefaultTokenTTL = time.Hour

var (
	errUnknownSession = errors.New("authtest: unknown session")
	errBadPassword    = errors.New("authtest: session password mismatch")
)

// User is an account on the test server.
type User struct {
	ID        string
	Name      string
	Email     string
	Roles     []string
	UserDBs   map[string]string
	Providers []string

	EmailVerified bool

	passwordHash string
}

type issuedSession struct {
	userID   string
	password string
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the server clock. Tokens are issued and validated against
// it, which lets tests simulate skew between client and server.
func WithClock(c clock.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithTokenTTL sets how long issued sessions stay valid.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.ttl = d }
}

// WithProviders enables social login for the named providers.
func WithProviders(p ...string) Option {
	return func(s *Server) { s.providers = append(s.providers, p...) }
}

// WithCallbackURL makes the provider popup pages redirect to u with the
// outcome in the query, like the real service's callback page.
func WithCallbackURL(u string) Option {
	return func(s *Server) { s.callbackURL = u }
}

// WithAutoLogin signs newly registered users in straight away.
func WithAutoLogin() Option {
	return func(s *Server) { s.autoLogin = true }
}

// WithLoginRateLimit limits login attempts per client IP.
func WithLoginRateLimit(cfg httpx.RateLimitConfig) Option {
	return func(s *Server) { s.loginLimit = &cfg }
}

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server is a running test auth service.
type Server struct {
	// URL is the base URL of the server, e.g. http://127.0.0.1:54321.
	URL string

	srv         *httptest.Server
	clock       clock.Clock
	ttl         time.Duration
	secret      []byte
	providers   []string
	callbackURL string
	autoLogin   bool
	loginLimit  *httpx.RateLimitConfig
	logger      *slog.Logger

	mu           sync.Mutex
	users        map[string]*User
	sessions     map[string]issuedSession
	verifyTokens map[string]string
	resetTokens  map[string]string
	hits         map[string]int
}

// New starts a server. Call Close when done.
func New(opts ...Option) *Server {
	s := &Server{
		clock:        clock.Real{},
		ttl:          DefaultTokenTTL,
		secret:       []byte(cryptox.MustGenerateToken(cryptox.TokenSize256)),
		logger:       slogx.Discard(),
		users:        make(map[string]*User),
		sessions:     make(map[string]issuedSession),
		verifyTokens: make(map[string]string),
		resetTokens:  make(map[string]string),
		hits:         make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.srv = httptest.NewServer(s.Router())
	s.URL = s.srv.URL
	return s
}

// Close shuts the server down.
func (s *Server) Close() { s.srv.Close() }

// BaseURL is the auth endpoint prefix clients should be configured with.
func (s *Server) BaseURL() string { return s.URL + "/auth/" }

// Router returns the server's routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(slogx.HTTPMiddleware(s.logger), s.countHits)

	authn := httpx.AuthnMiddleware(s)

	r.Route("/auth", func(r chi.Router) {
		login := http.Handler(http.HandlerFunc(s.handleLogin))
		if s.loginLimit != nil {
			login = httpx.RateLimitByIP(*s.loginLimit)(login)
		}
		r.Method(http.MethodPost, "/login", login)

		r.Post("/register", s.handleRegister)
		r.Post("/forgot-password", s.handleForgotPassword)
		r.Post("/password-reset", s.handlePasswordReset)
		r.Get("/verify-email/{token}", s.handleVerifyEmail)
		r.Get("/validate-username/{username}", s.handleValidateUsername)
		r.Get("/validate-email/{email}", s.handleValidateEmail)

		r.Group(func(r chi.Router) {
			r.Use(authn)
			r.Post("/logout", s.handleLogout)
			r.Post("/logout-all", s.handleLogoutAll)
			r.Post("/logout-others", s.handleLogoutOthers)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/password-change", s.handlePasswordChange)
			r.Post("/change-email", s.handleChangeEmail)
			r.Get("/link/{provider}", s.handleLinkPopup)
			r.Post("/link/{provider}/token", s.handleTokenLink)
			r.Post("/unlink/{provider}", s.handleUnlink)
		})

		r.Get("/{provider}", s.handleProviderPopup)
		r.Post("/{provider}/token", s.handleProviderToken)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(authn)
		r.Get("/whoami", s.handleWhoAmI)
		r.With(httpx.RequireAnyRole("admin")).Get("/admin", s.handleWhoAmI)
	})

	return r
}

func (s *Server) countHits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// Hits returns how many requests were made to path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// AddUser creates an account with the given password.
func (s *Server) AddUser(u User, password string) error {
	if u.ID == "" {
		return errors.New("authtest: user id is required")
	}
	if password != "" {
		hash, err := cryptox.HashPassword(password)
		if err != nil {
			return err
		}
		u.passwordHash = hash
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.ID]; exists {
		return fmt.Errorf("authtest: user %q exists", u.ID)
	}
	s.users[u.ID] = &u
	return nil
}

// User returns a copy of the account with id.
func (s *Server) User(id string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, false
	}
	c := *u
	c.Roles = slices.Clone(u.Roles)
	c.Providers = slices.Clone(u.Providers)
	return c, true
}

// VerifyToken returns the pending email verification token of a user.
func (s *Server) VerifyToken(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, id := range s.verifyTokens {
		if id == userID {
			return token
		}
	}
	return ""
}

// ResetToken returns the pending password reset token of a user.
func (s *Server) ResetToken(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, id := range s.resetTokens {
		if id == userID {
			return token
		}
	}
	return ""
}

// SessionCount returns the number of live sessions of a user.
func (s *Server) SessionCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, is := range s.sessions {
		if is.userID == userID {
			n++
		}
	}
	return n
}

// RevokeAll drops every issued session, so the next authenticated request
// answers 401.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.sessions)
}

// AccessToken returns the provider access token the server accepts for
// token based social login and linking.
func AccessToken(provider string) string {
	return provider + "-access-token"
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// Verify implements httpx.Verifier.
func (s *Server) Verify(_ context.Context, token, password string) (httpx.Principal, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return httpx.Principal{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	is, ok := s.sessions[claims.ID]
	if !ok {
		return httpx.Principal{}, errUnknownSession
	}
	if subtle.ConstantTimeCompare([]byte(is.password), []byte(password)) != 1 {
		return httpx.Principal{}, errBadPassword
	}
	u, ok := s.users[is.userID]
	if !ok {
		return httpx.Principal{}, errUnknownSession
	}
	return httpx.Principal{UserID: u.ID, SessionID: claims.ID, Roles: slices.Clone(u.Roles)}, nil
}

// issue creates a session for u. The caller holds s.mu.
func (s *Server) issue(u *User, password, provider string) (session.Session, error) {
	if password == "" {
		password = cryptox.MustGenerateToken(cryptox.TokenSize128)
	}

	now := s.clock.Now()
	expires := now.Add(s.ttl)
	jti := idx.NewAt(now).String()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}).SignedString(s.secret)
	if err != nil {
		return session.Session{}, fmt.Errorf("sign session token: %w", err)
	}

	s.sessions[jti] = issuedSession{userID: u.ID, password: password}

	return session.Session{
		UserID:   u.ID,
		Token:    token,
		Password: password,
		Issued:   now.UnixMilli(),
		Expires:  expires.UnixMilli(),
		Roles:    slices.Clone(u.Roles),
		UserDBs:  u.UserDBs,
		Provider: provider,
	}, nil
}

func (s *Server) supportsProvider(p string) bool {
	return slices.Contains(s.providers, p)
}
