package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sessionkit/pkg/clock"
	"github.com/aussiebroadwan/sessionkit/pkg/popup"
	"github.com/aussiebroadwan/sessionkit/pkg/session"
)

const t0 = int64(1_700_000_000_000)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

func noBrowser() popup.Opener {
	return popup.OpenerFunc(func(context.Context, string, popup.Options) (popup.Window, error) {
		return popup.NewTimedWindow(0), nil
	})
}

func testConfig(driver, path string) Config {
	return Config{
		BaseURL:       "https://auth.example.com/auth/",
		Storage:       session.StorageLocal,
		StorageDriver: driver,
		StoragePath:   path,
		CheckExpired:  session.CheckStartup,
		LogLevel:      "error",
	}
}

func TestNew_PersistsAcrossRestarts(t *testing.T) {
	tests := []struct {
		driver string
		file   string
	}{
		{DriverFile, "session.json"},
		{DriverSQLite, "session.db"},
		{DriverBBolt, "session.bolt"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", tt.file)
			clk := clock.NewMockMillis(t0)
			cfg := testConfig(tt.driver, path)

			a, err := New(cfg, WithOpener(noBrowser()), WithSessionOptions(session.WithClock(clk)))
			require.NoError(t, err)
			require.NoError(t, a.Store.SetSession(session.Session{
				UserID: "alice", Token: "tok", Password: "pw", Issued: t0, Expires: t0 + 60_000,
			}))
			require.NoError(t, a.Close())

			b, err := New(cfg, WithOpener(noBrowser()), WithSessionOptions(session.WithClock(clk)))
			require.NoError(t, err)
			defer b.Close()

			require.True(t, b.Store.Authenticated())
			sess, ok := b.Store.Session()
			require.True(t, ok)
			require.Equal(t, "alice", sess.UserID)
		})
	}
}

func TestNew_SessionStorageIsMemory(t *testing.T) {
	cfg := testConfig(DriverSQLite, filepath.Join(t.TempDir(), "unused.db"))
	cfg.Storage = session.StorageSession

	a, err := New(cfg, WithOpener(noBrowser()))
	require.NoError(t, err)
	defer a.Close()

	_, err = os.Stat(cfg.StoragePath)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(testConfig("redis", filepath.Join(t.TempDir(), "x")))
	require.ErrorContains(t, err, `unknown storage driver "redis"`)
}

func TestNew_ExpiredSessionDroppedAtStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	clk := clock.NewMockMillis(t0)
	cfg := testConfig(DriverFile, path)

	a, err := New(cfg, WithOpener(noBrowser()), WithSessionOptions(session.WithClock(clk)))
	require.NoError(t, err)
	require.NoError(t, a.Store.SetSession(session.Session{
		UserID: "alice", Token: "tok", Password: "pw", Issued: t0, Expires: t0 + 1000,
	}))
	require.NoError(t, a.Close())

	clk.SetMillis(t0 + 10_000)
	b, err := New(cfg, WithOpener(noBrowser()), WithSessionOptions(session.WithClock(clk)))
	require.NoError(t, err)
	defer b.Close()
	require.False(t, b.Store.Authenticated())
}

func TestNavigateChecksExpiry(t *testing.T) {
	clk := clock.NewMockMillis(t0)
	cfg := testConfig(DriverMemory, "")
	cfg.CheckExpired = session.CheckOnNavigation

	a, err := New(cfg, WithOpener(noBrowser()), WithSessionOptions(session.WithClock(clk)))
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Store.SetSession(session.Session{
		UserID: "alice", Token: "tok", Password: "pw", Issued: t0, Expires: t0 + 1000,
	}))

	var reasons []string
	a.Store.Events().OnLogout(func(r string) { reasons = append(reasons, r) })

	a.Navigate()
	require.True(t, a.Store.Authenticated())

	clk.SetMillis(t0 + 2000)
	a.Navigate()
	require.False(t, a.Store.Authenticated())
	require.Equal(t, []string{session.ReasonExpired}, reasons)
}
