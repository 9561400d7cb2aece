package authtest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sessionkit/pkg/authsdk"
	"github.com/aussiebroadwan/sessionkit/pkg/authsdk/authtest"
	"github.com/aussiebroadwan/sessionkit/pkg/clock"
	"github.com/aussiebroadwan/sessionkit/pkg/httpx"
	"github.com/aussiebroadwan/sessionkit/pkg/popup"
	"github.com/aussiebroadwan/sessionkit/pkg/session"
	"github.com/aussiebroadwan/sessionkit/pkg/slogx"
	"github.com/aussiebroadwan/sessionkit/pkg/storage/drivers/memory"
)

func newClient(t *testing.T, srv *authtest.Server, opts ...authsdk.Option) (*authsdk.Client, *session.Store) {
	t.Helper()

	store, err := session.New(session.Config{
		BaseURL:   srv.BaseURL(),
		Providers: []string{"google"},
	}, session.WithStorage(memory.New()), session.WithLogger(slogx.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	opts = append([]authsdk.Option{authsdk.WithLogger(slogx.Discard())}, opts...)
	return authsdk.New(store, opts...), store
}

func newServer(t *testing.T, opts ...authtest.Option) *authtest.Server {
	t.Helper()
	srv := authtest.New(append([]authtest.Option{authtest.WithProviders("google")}, opts...)...)
	t.Cleanup(srv.Close)
	return srv
}

func whoami(t *testing.T, c *authsdk.Client, srv *authtest.Server, path string) int {
	t.Helper()
	resp, err := c.HTTPClient().Get(srv.URL + path)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestPasswordLogin(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	require.NoError(t, srv.AddUser(authtest.User{ID: "alice", Email: "alice@example.com", Roles: []string{"user"}}, "hunter22"))
	c, store := newClient(t, srv)

	require.Equal(t, http.StatusUnauthorized, whoami(t, c, srv, "/api/whoami"))

	_, err := c.Login(context.Background(), authsdk.Credentials{Username: "alice", Password: "nope"})
	require.Error(t, err)
	require.False(t, store.Authenticated())

	sess, err := c.Login(context.Background(), authsdk.Credentials{Username: "alice@example.com", Password: "hunter22"})
	require.NoError(t, err)
	require.Equal(t, "alice", sess.UserID)
	require.Equal(t, []string{"user"}, sess.Roles)
	require.True(t, store.ConfirmRole("user"))

	require.Equal(t, http.StatusOK, whoami(t, c, srv, "/api/whoami"))
	require.Equal(t, http.StatusForbidden, whoami(t, c, srv, "/api/admin"))
	require.Equal(t, 1, srv.SessionCount("alice"))
}

func TestRevokedSessionLogsOut(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	require.NoError(t, srv.AddUser(authtest.User{ID: "alice"}, "hunter22"))
	c, store := newClient(t, srv)

	var reasons []string
	store.Events().OnLogout(func(r string) { reasons = append(reasons, r) })

	_, err := c.Login(context.Background(), authsdk.Credentials{Username: "alice", Password: "hunter22"})
	require.NoError(t, err)

	srv.RevokeAll()
	require.Equal(t, http.StatusUnauthorized, whoami(t, c, srv, "/api/whoami"))
	require.False(t, store.Authenticated())
	require.Equal(t, []string{session.ReasonExpired}, reasons)
}

func TestExpiredTokenRejected(t *testing.T) {
	t.Parallel()

	serverClock := clock.NewMock(time.Now())
	srv := newServer(t, authtest.WithClock(serverClock), authtest.WithTokenTTL(time.Minute))
	require.NoError(t, srv.AddUser(authtest.User{ID: "alice"}, "hunter22"))
	c, store := newClient(t, srv)

	_, err := c.Login(context.Background(), authsdk.Credentials{Username: "alice", Password: "hunter22"})
	require.NoError(t, err)

	serverClock.Advance(2 * time.Minute)
	require.Equal(t, http.StatusUnauthorized, whoami(t, c, srv, "/api/whoami"))
	require.False(t, store.Authenticated())
}

func TestRefreshRotatesToken(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	require.NoError(t, srv.AddUser(authtest.User{ID: "alice"}, "hunter22"))
	c, store := newClient(t, srv)

	before, err := c.Login(context.Background(), authsdk.Credentials{Username: "alice", Password: "hunter22"})
	require.NoError(t, err)

	after, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, before.Token, after.Token)
	require.Equal(t, before.Password, after.Password)

	stored, ok := store.Session()
	require.True(t, ok)
	require.Equal(t, after.Token, stored.Token)

	require.Equal(t, http.StatusOK, whoami(t, c, srv, "/api/whoami"))
	require.Equal(t, 1, srv.SessionCount("alice"))
}

func TestLogoutVariants(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	require.NoError(t, srv.AddUser(authtest.User{ID: "alice"}, "hunter22"))
	creds := authsdk.Credentials{Username: "alice", Password: "hunter22"}

	first, _ := newClient(t, srv)
	second, _ := newClient(t, srv)
	third, thirdStore := newClient(t, srv)
	for _, c := range []*authsdk.Client{first, second, third} {
		_, err := c.Login(context.Background(), creds)
		require.NoError(t, err)
	}
	require.Equal(t, 3, srv.SessionCount("alice"))

	reply, err := first.LogoutOthers(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Other sessions logged out", reply.Success)
	require.Equal(t, 1, srv.SessionCount("alice"))

	require.NoError(t, first.Logout(context.Background(), ""))
	require.Equal(t, 0, srv.SessionCount("alice"))

	// third's session was ended elsewhere; logging out locally still works
	// and reports the server's rejection.
	err = third.Logout(context.Background(), "")
	require.Error(t, err)
	require.False(t, thirdStore.Authenticated())
}

func TestRegisterAndVerify(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	c, store := newClient(t, srv)

	ok, err := c.ValidateEmail(context.Background(), "bob@example.com")
	require.NoError(t, err)
	require.True(t, ok)

	res, err := c.Register(context.Background(), authsdk.Registration{
		Username:        "bob",
		Email:           "bob@example.com",
		Password:        "s3cret",
		ConfirmPassword: "s3cret",
	})
	require.NoError(t, err)
	require.Equal(t, "User created.", res.Success)
	require.Nil(t, res.Session)
	require.False(t, store.Authenticated())

	ok, err = c.ValidateUsername(context.Background(), "bob")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = c.Register(context.Background(), authsdk.Registration{Email: "bob@example.com", Password: "a", ConfirmPassword: "b"})
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Contains(t, apiErr.Details, "email")
	require.Contains(t, apiErr.Details, "confirmPassword")

	_, err = c.VerifyEmail(context.Background(), "")
	require.ErrorIs(t, err, authsdk.ErrInvalidToken)

	reply, err := c.VerifyEmail(context.Background(), srv.VerifyToken("bob"))
	require.NoError(t, err)
	require.Equal(t, "Email verified", reply.Success)

	u, ok := srv.User("bob")
	require.True(t, ok)
	require.True(t, u.EmailVerified)
}

func TestRegisterAutoLogin(t *testing.T) {
	t.Parallel()

	srv := newServer(t, authtest.WithAutoLogin())
	c, store := newClient(t, srv)

	res, err := c.Register(context.Background(), authsdk.Registration{Email: "carol@example.com", Password: "pw", ConfirmPassword: "pw"})
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	require.Equal(t, "carol@example.com", res.Session.UserID)
	require.True(t, store.Authenticated())
}

func TestPasswordResetFlow(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	require.NoError(t, srv.AddUser(authtest.User{ID: "alice", Email: "alice@example.com"}, "old-password"))
	c, store := newClient(t, srv)

	_, err := c.ForgotPassword(context.Background(), "alice@example.com")
	require.NoError(t, err)
	token := srv.ResetToken("alice")
	require.NotEmpty(t, token)

	res, err := c.ResetPassword(context.Background(), authsdk.PasswordReset{Token: token, Password: "new-password", ConfirmPassword: "new-password"})
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	require.True(t, store.Authenticated())

	_, err = c.ChangePassword(context.Background(), authsdk.PasswordChange{CurrentPassword: "wrong", NewPassword: "x", ConfirmPassword: "x"})
	require.Error(t, err)

	_, err = c.ChangePassword(context.Background(), authsdk.PasswordChange{CurrentPassword: "new-password", NewPassword: "newer", ConfirmPassword: "newer"})
	require.NoError(t, err)

	require.NoError(t, c.Logout(context.Background(), ""))
	_, err = c.Login(context.Background(), authsdk.Credentials{Username: "alice", Password: "newer"})
	require.NoError(t, err)

	_, err = c.ChangeEmail(context.Background(), "alice@new.example.com")
	require.NoError(t, err)
	u, _ := srv.User("alice")
	require.Equal(t, "alice@new.example.com", u.Email)
	require.False(t, u.EmailVerified)
}

func TestTokenSocialAuthAndLink(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	c, store := newClient(t, srv)

	_, err := c.TokenSocialAuth(context.Background(), "google", "bogus")
	require.Error(t, err)

	res, err := c.TokenSocialAuth(context.Background(), "google", authtest.AccessToken("google"))
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	require.Equal(t, "google_user", res.Session.UserID)
	require.Equal(t, "google", res.Session.Provider)
	require.True(t, store.Authenticated())

	reply, err := c.Unlink(context.Background(), "google")
	require.NoError(t, err)
	require.Equal(t, "Google unlinked", reply.Success)

	reply, err = c.TokenLink(context.Background(), "google", authtest.AccessToken("google"))
	require.NoError(t, err)
	require.Equal(t, "Google successfully linked.", reply.Success)

	u, _ := srv.User("google_user")
	require.Equal(t, []string{"google"}, u.Providers)
}

// browser follows the popup URL like a real browser would, landing on the
// callback page once the coordinator is waiting for it.
func browser(coord **popup.Coordinator) popup.Opener {
	return popup.OpenerFunc(func(_ context.Context, u string, _ popup.Options) (popup.Window, error) {
		go func() {
			for (*coord).Pending() == nil {
				time.Sleep(time.Millisecond)
			}
			resp, err := http.Get(u)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return popup.NewTimedWindow(time.Minute), nil
	})
}

func TestPopupFlows(t *testing.T) {
	t.Parallel()

	var callback http.Handler
	cb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callback.ServeHTTP(w, r)
	}))
	defer cb.Close()

	srv := newServer(t, authtest.WithCallbackURL(cb.URL+"/callback"))

	store, err := session.New(session.Config{BaseURL: srv.BaseURL(), Providers: []string{"google"}},
		session.WithStorage(memory.New()), session.WithLogger(slogx.Discard()))
	require.NoError(t, err)
	defer store.Close()

	var coord *popup.Coordinator
	coord = popup.New(store, browser(&coord), popup.WithPollInterval(10*time.Millisecond), popup.WithLogger(slogx.Discard()))
	callback = popup.Handler(coord)

	c := authsdk.New(store, authsdk.WithCoordinator(coord), authsdk.WithLogger(slogx.Discard()))

	var links []string
	store.Events().OnLink(func(p string) { links = append(links, p) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := c.SocialAuth(ctx, "google")
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	require.Equal(t, "google_user", res.Session.UserID)
	require.True(t, store.Authenticated())

	_, err = c.Unlink(ctx, "google")
	require.NoError(t, err)

	res, err = c.Link(ctx, "google")
	require.NoError(t, err)
	require.Equal(t, "google", res.Provider)
	require.Equal(t, "Google successfully linked.", res.Message)
	require.Equal(t, []string{"google"}, links)
}

func TestLoginRateLimit(t *testing.T) {
	t.Parallel()

	srv := newServer(t, authtest.WithLoginRateLimit(httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}))
	require.NoError(t, srv.AddUser(authtest.User{ID: "alice"}, "hunter22"))
	c, _ := newClient(t, srv)

	creds := authsdk.Credentials{Username: "alice", Password: "wrong"}
	for range 2 {
		_, err := c.Login(context.Background(), creds)
		var apiErr *authsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	}

	_, err := c.Login(context.Background(), creds)
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Equal(t, 3, srv.Hits("/auth/login"))
}

func TestSessionPayloadShape(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	require.NoError(t, srv.AddUser(authtest.User{ID: "alice", UserDBs: map[string]string{"main": "https://db/alice"}}, "hunter22"))

	resp, err := http.Post(srv.BaseURL()+"login", "application/json",
		jsonBody(t, map[string]string{"username": "alice", "password": "hunter22"}))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	for _, k := range []string{"user_id", "token", "password", "issued", "expires", "userDBs"} {
		require.Contains(t, raw, k)
	}
	require.NotContains(t, raw, "serverTimeDiff")
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}
