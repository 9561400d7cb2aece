package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sessionkit/internal/app"
	"github.com/aussiebroadwan/sessionkit/pkg/authsdk"
	"github.com/aussiebroadwan/sessionkit/pkg/authsdk/authtest"
	"github.com/aussiebroadwan/sessionkit/pkg/popup"
	"github.com/aussiebroadwan/sessionkit/pkg/session"
)

func newApp(t *testing.T, srv *authtest.Server) *app.Application {
	t.Helper()

	cfg := app.Config{
		BaseURL:       srv.BaseURL(),
		Storage:       session.StorageSession,
		StorageDriver: app.DriverMemory,
		CheckExpired:  session.CheckStartup,
		Providers:     []string{"google"},
		LogLevel:      "error",
	}
	a, err := app.New(cfg, app.WithOpener(popup.OpenerFunc(func(context.Context, string, popup.Options) (popup.Window, error) {
		return popup.NewTimedWindow(time.Minute), nil
	})))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestLoginStatusLogout(t *testing.T) {
	srv := authtest.New()
	defer srv.Close()
	require.NoError(t, srv.AddUser(authtest.User{ID: "alice", Roles: []string{"user", "admin"}}, "hunter22"))
	a := newApp(t, srv)
	ctx := context.Background()

	var out bytes.Buffer
	err := runLogin(ctx, a.Client, &out, authsdk.Credentials{Username: "alice", Password: "wrong"})
	require.EqualError(t, err, "Invalid username or password")

	require.NoError(t, runLogin(ctx, a.Client, &out, authsdk.Credentials{Username: "alice", Password: "hunter22"}))
	require.Equal(t, "Signed in as alice.\n", out.String())

	sess, ok := a.Store.Session()
	require.True(t, ok)
	status := formatStatusHuman(statusView(sess, ok, time.Now()))
	require.Contains(t, status, "Signed in as alice")
	require.Contains(t, status, "user, admin")

	out.Reset()
	require.NoError(t, runRefresh(ctx, a.Client, &out))
	require.Contains(t, out.String(), "Session renewed until")

	out.Reset()
	require.NoError(t, runLogout(ctx, a.Client, &out, false, false))
	require.Equal(t, "Signed out.\n", out.String())
	require.False(t, a.Store.Authenticated())

	out.Reset()
	require.NoError(t, runLogout(ctx, a.Client, &out, false, false))
	require.Equal(t, "Not signed in.\n", out.String())
}

func TestRegisterAndValidate(t *testing.T) {
	srv := authtest.New()
	defer srv.Close()
	a := newApp(t, srv)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runValidate(ctx, &out, "Username", "bob", a.Client.ValidateUsername))
	require.Equal(t, "Username bob is available.\n", out.String())

	out.Reset()
	require.NoError(t, runRegister(ctx, a.Client, &out, authsdk.Registration{
		Username: "bob", Email: "bob@example.com", Password: "pw", ConfirmPassword: "pw",
	}))
	require.Equal(t, "User created.\n", out.String())

	out.Reset()
	require.NoError(t, runValidate(ctx, &out, "Username", "bob", a.Client.ValidateUsername))
	require.Equal(t, "Username bob is already in use.\n", out.String())

	err := runRegister(ctx, a.Client, &out, authsdk.Registration{Email: "bob@example.com", Password: "a", ConfirmPassword: "b"})
	require.ErrorContains(t, err, "email: Email already in use")
}

func TestFormatStatusHuman_NotSignedIn(t *testing.T) {
	require.Contains(t, formatStatusHuman(statusView(session.Session{}, false, time.Now())), "Not signed in.")
}

func TestStatusView(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	sess := session.Session{
		UserID:         "alice",
		Token:          "t",
		Password:       "p",
		Issued:         now.UnixMilli(),
		Expires:        now.Add(time.Hour).UnixMilli(),
		ServerTimeDiff: 60_000,
		UserDBs:        map[string]string{"main": "https://db/alice"},
	}

	v := statusView(sess, true, now)
	require.True(t, v.Authenticated)
	require.Equal(t, "59m0s", v.ExpiresIn)

	out := formatStatusHuman(v)
	require.Contains(t, out, "60000ms")
	require.Contains(t, out, "https://db/alice")
}
