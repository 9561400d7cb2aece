package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sessionkit/pkg/popup"
	"github.com/aussiebroadwan/sessionkit/pkg/session"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{
		"SESSIONKIT_ORIGIN", "SESSIONKIT_BASE_URL", "SESSIONKIT_STORAGE", "SESSIONKIT_STORAGE_DRIVER",
		"SESSIONKIT_STORAGE_PATH", "SESSIONKIT_CHECK_EXPIRED", "SESSIONKIT_REFRESH_THRESHOLD",
		"SESSIONKIT_PROVIDERS", "SESSIONKIT_ENDPOINTS", "SESSIONKIT_NO_DEFAULT_ENDPOINT",
		"SESSIONKIT_CALLBACK_ADDR", "SESSIONKIT_POPUP_TIMEOUT", "ENV", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()
	require.Equal(t, session.DefaultBaseURL, cfg.BaseURL)
	require.Equal(t, session.StorageLocal, cfg.Storage)
	require.Equal(t, DriverFile, cfg.StorageDriver)
	require.Equal(t, session.CheckStartup, cfg.CheckExpired)
	require.Equal(t, session.DefaultRefreshThreshold, cfg.RefreshThreshold)
	require.Equal(t, "127.0.0.1:8765", cfg.CallbackAddr)
	require.Equal(t, popup.DefaultExecTimeout, cfg.PopupTimeout)
	require.Empty(t, cfg.Providers)
	require.False(t, cfg.NoDefaultEndpoint)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SESSIONKIT_ORIGIN", "https://app.example.com")
	t.Setenv("SESSIONKIT_BASE_URL", "/api/auth/")
	t.Setenv("SESSIONKIT_STORAGE", "session")
	t.Setenv("SESSIONKIT_STORAGE_DRIVER", "BBolt")
	t.Setenv("SESSIONKIT_CHECK_EXPIRED", "stateChange")
	t.Setenv("SESSIONKIT_REFRESH_THRESHOLD", "0.75")
	t.Setenv("SESSIONKIT_PROVIDERS", "google, github ,")
	t.Setenv("SESSIONKIT_ENDPOINTS", "api.example.com")
	t.Setenv("SESSIONKIT_NO_DEFAULT_ENDPOINT", "true")
	t.Setenv("SESSIONKIT_POPUP_TIMEOUT", "90")

	cfg := LoadConfig()
	require.Equal(t, "https://app.example.com", cfg.Origin)
	require.Equal(t, session.StorageSession, cfg.Storage)
	require.Equal(t, DriverBBolt, cfg.StorageDriver)
	require.Equal(t, session.CheckOnNavigation, cfg.CheckExpired)
	require.InDelta(t, 0.75, cfg.RefreshThreshold, 1e-9)
	require.Equal(t, []string{"google", "github"}, cfg.Providers)
	require.Equal(t, 90*time.Second, cfg.PopupTimeout)

	sc := cfg.SessionConfig()
	require.Equal(t, "https://app.example.com/api/auth/login", sc.URL("login"))
	require.Equal(t, []string{"api.example.com"}, sc.EndpointHosts())
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SESSIONKIT_REFRESH_THRESHOLD", "1.5")
	t.Setenv("SESSIONKIT_NO_DEFAULT_ENDPOINT", "maybe")
	t.Setenv("SESSIONKIT_POPUP_TIMEOUT", "soon")

	cfg := LoadConfig()
	require.Equal(t, session.DefaultRefreshThreshold, cfg.RefreshThreshold)
	require.False(t, cfg.NoDefaultEndpoint)
	require.Equal(t, popup.DefaultExecTimeout, cfg.PopupTimeout)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("SESSIONKIT_BASE_URL", "")
	require.NoError(t, os.Unsetenv("SESSIONKIT_BASE_URL"))
	require.NoError(t, writeFile(filepath.Join(dir, ".env"), "SESSIONKIT_BASE_URL=https://auth.example.com/auth/\n"))

	cfg := LoadConfig()
	require.Equal(t, "https://auth.example.com/auth/", cfg.BaseURL)
}

func TestStoragePath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/tmp/x", Config{StoragePath: "/tmp/x", StorageDriver: DriverSQLite}.storagePath())
	require.Equal(t, "session.db", filepath.Base(Config{StorageDriver: DriverSQLite}.storagePath()))
	require.Equal(t, "session.bolt", filepath.Base(Config{StorageDriver: DriverBBolt}.storagePath()))
	require.Equal(t, session.DefaultStoragePath(), Config{StorageDriver: DriverFile}.storagePath())
}
