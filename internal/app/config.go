package app

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aussiebroadwan/sessionkit/pkg/popup"
	"github.com/aussiebroadwan/sessionkit/pkg/session"
)

// Storage drivers selectable with SESSIONKIT_STORAGE_DRIVER.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverBBolt  = "bbolt"
)

type Config struct {
	Origin               string              // Optional: origin relative base URLs resolve against
	BaseURL              string              // Auth endpoint prefix (default: /auth/)
	Storage              session.StorageMode // session or local (default: local)
	StorageDriver        string              // memory, file, sqlite or bbolt (default: file)
	StoragePath          string              // Optional: storage file (default: per driver, under the user config dir)
	CheckExpired         session.CheckMode   // "", startup or onNavigation (default: startup)
	RefreshThreshold     float64             // Fraction of token lifetime before refreshing (default: 0.5)
	RefreshRetryInterval time.Duration       // Optional: minimum spacing of refresh attempts
	Providers            []string            // Enabled social providers, comma separated
	Endpoints            []string            // Extra hosts that receive the bearer credential
	NoDefaultEndpoint    bool                // Do not authorize the auth server's own host
	CallbackAddr         string              // Loopback address for popup completion (default: 127.0.0.1:8765)
	PopupTimeout         time.Duration       // How long a browser popup may stay open (default: 5m)
	Env                  string              // Environment (dev, prod) (default: prod)
	LogLevel             string              // Log level (default: warn)
	LogFormat            string              // Log format (json, text) (default: text)
}

// LoadConfig reads the configuration from the environment. Values in a .env
// file in the working directory are used for variables that are not set.
func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		Origin:               os.Getenv("SESSIONKIT_ORIGIN"),
		BaseURL:              getEnvOrDefault("SESSIONKIT_BASE_URL", session.DefaultBaseURL),
		Storage:              session.StorageMode(getEnvOrDefault("SESSIONKIT_STORAGE", string(session.StorageLocal))),
		StorageDriver:        strings.ToLower(getEnvOrDefault("SESSIONKIT_STORAGE_DRIVER", DriverFile)),
		StoragePath:          os.Getenv("SESSIONKIT_STORAGE_PATH"),
		CheckExpired:         session.ParseCheckMode(getEnvOrDefault("SESSIONKIT_CHECK_EXPIRED", string(session.CheckStartup))),
		RefreshThreshold:     getEnvFloatOrDefault("SESSIONKIT_REFRESH_THRESHOLD", session.DefaultRefreshThreshold),
		RefreshRetryInterval: getEnvDurationOrDefault("SESSIONKIT_REFRESH_RETRY_INTERVAL", 0),
		Providers:            getEnvList("SESSIONKIT_PROVIDERS"),
		Endpoints:            getEnvList("SESSIONKIT_ENDPOINTS"),
		NoDefaultEndpoint:    getEnvBoolOrDefault("SESSIONKIT_NO_DEFAULT_ENDPOINT", false),
		CallbackAddr:         getEnvOrDefault("SESSIONKIT_CALLBACK_ADDR", "127.0.0.1:8765"),
		PopupTimeout:         getEnvDurationOrDefault("SESSIONKIT_POPUP_TIMEOUT", popup.DefaultExecTimeout),
		Env:                  getEnvOrDefault("ENV", "prod"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

// SessionConfig returns the session store configuration.
func (c Config) SessionConfig() session.Config {
	return session.Config{
		BaseURL:              c.BaseURL,
		Origin:               c.Origin,
		Storage:              c.Storage,
		StoragePath:          c.StoragePath,
		CheckExpired:         c.CheckExpired,
		RefreshThreshold:     c.RefreshThreshold,
		RefreshRetryInterval: c.RefreshRetryInterval,
		Providers:            c.Providers,
		Endpoints:            c.Endpoints,
		NoDefaultEndpoint:    c.NoDefaultEndpoint,
	}
}

// storagePath returns the configured path or the driver's default file.
func (c Config) storagePath() string {
	if c.StoragePath != "" {
		return c.StoragePath
	}
	dir := filepath.Dir(session.DefaultStoragePath())
	switch c.StorageDriver {
	case DriverSQLite:
		return filepath.Join(dir, "session.db")
	case DriverBBolt:
		return filepath.Join(dir, "session.bolt")
	default:
		return session.DefaultStoragePath()
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil && f >= 0 && f <= 1 {
		return f
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
