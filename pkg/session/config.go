package session

import (
	"net/url"
	"slices"
	"strings"
	"time"
)

// StorageMode selects how long the persisted session survives.
type StorageMode string

const (
	// StorageLocal keeps the session on disk across process restarts.
	StorageLocal StorageMode = "local"
	// StorageSession keeps the session only for the life of the process.
	StorageSession StorageMode = "session"
)

// CheckMode selects when the store checks for local expiry on its own.
type CheckMode string

const (
	CheckDisabled     CheckMode = ""
	CheckStartup      CheckMode = "startup"
	CheckOnNavigation CheckMode = "onNavigation"
)

// ParseCheckMode maps a configuration string to a CheckMode. "stateChange"
// is accepted as an alias of onNavigation. Unknown values disable checks.
func ParseCheckMode(s string) CheckMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "startup":
		return CheckStartup
	case "onnavigation", "statechange", "navigation":
		return CheckOnNavigation
	default:
		return CheckDisabled
	}
}

const (
	DefaultBaseURL          = "/auth/"
	DefaultRefreshThreshold = 0.5
	DefaultRefreshTimeout   = 30 * time.Second
)

// Config is fixed once a Store is built.
type Config struct {
	// BaseURL prefixes every auth endpoint. Relative values are resolved
	// against Origin.
	BaseURL string
	// Origin is where the application itself is served from, e.g.
	// "https://app.example.com".
	Origin string

	Storage     StorageMode
	StoragePath string // file location for StorageLocal; defaults under the user config dir

	CheckExpired CheckMode

	// RefreshThreshold is the fraction of the token lifetime that must
	// elapse before a proactive refresh starts.
	RefreshThreshold float64
	// RefreshTimeout bounds a single proactive refresh.
	RefreshTimeout time.Duration
	// RefreshRetryInterval is the minimum spacing between proactive refresh
	// attempts. Zero leaves attempts unthrottled.
	RefreshRetryInterval time.Duration

	// Providers lists the external auth providers the server supports.
	Providers []string

	// Endpoints lists hosts (or URLs) that may receive the bearer
	// credential. Unless NoDefaultEndpoint is set the application's own
	// host is always included.
	Endpoints         []string
	NoDefaultEndpoint bool
}

// WithDefaults returns a copy of c with defaults applied.
func (c Config) WithDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Storage == "" {
		c.Storage = StorageLocal
	}
	if c.RefreshThreshold <= 0 {
		c.RefreshThreshold = DefaultRefreshThreshold
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = DefaultRefreshTimeout
	}
	c.Providers = slices.Clone(c.Providers)
	c.Endpoints = slices.Clone(c.Endpoints)
	return c
}

// URL joins path onto the resolved base URL.
func (c Config) URL(path string) string {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !isAbsolute(base) && c.Origin != "" {
		base = strings.TrimSuffix(c.Origin, "/") + "/" + strings.TrimPrefix(base, "/")
	}
	return base + strings.TrimPrefix(path, "/")
}

// SupportsProvider reports whether name is a configured provider.
func (c Config) SupportsProvider(name string) bool {
	return name != "" && slices.Contains(c.Providers, name)
}

// EndpointHosts returns the deduplicated set of hosts that may receive the
// bearer credential. Hosts include the port when one is given.
func (c Config) EndpointHosts() []string {
	var hosts []string
	add := func(h string) {
		if h != "" && !slices.Contains(hosts, h) {
			hosts = append(hosts, h)
		}
	}

	for _, e := range c.Endpoints {
		add(hostOf(e))
	}

	if !c.NoDefaultEndpoint {
		if h := hostOf(c.Origin); h != "" {
			add(h)
		} else if isAbsolute(c.BaseURL) {
			add(hostOf(c.BaseURL))
		}
	}
	return hosts
}

func isAbsolute(raw string) bool {
	return strings.Contains(raw, "://")
}

// hostOf accepts either a bare host ("api.example.com:8443") or a URL.
func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !isAbsolute(raw) {
		return strings.TrimSuffix(raw, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
