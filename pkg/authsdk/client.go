package authsdk

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aussiebroadwan/sessionkit/pkg/clock"
	"github.com/aussiebroadwan/sessionkit/pkg/popup"
	"github.com/aussiebroadwan/sessionkit/pkg/session"
	"github.com/aussiebroadwan/sessionkit/pkg/slogx"
)

// DefaultTimeout bounds each request of the default HTTP client.
const DefaultTimeout = 10 * time.Second

// Client talks to the auth service and keeps a session.Store in step with
// its results. It is safe for concurrent use.
type Client struct {
	store       *session.Store
	http        *http.Client
	coordinator *popup.Coordinator
	clock       clock.Clock
	logger      *slog.Logger
	metrics     *Metrics

	baseTransport http.RoundTripper
	refreshGroup  singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient uses a copy of hc. Its transport is wrapped with the
// authorization Transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBaseTransport sets the transport requests are finally sent with.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.baseTransport = rt }
}

// WithCoordinator sets the popup coordinator used by SocialAuth and Link.
// By default the system browser is used.
func WithCoordinator(pc *popup.Coordinator) Option {
	return func(c *Client) { c.coordinator = pc }
}

// WithClock sets the clock used to compute the server time difference.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records session activity in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for store and registers its Refresh as the store's
// refresh callback. It panics if store is nil.
func New(store *session.Store, opts ...Option) *Client {
	if store == nil {
		panic("authsdk: nil session store")
	}

	c := &Client{store: store}
	for _, opt := range opts {
		opt(c)
	}

	if c.clock == nil {
		c.clock = store.Clock()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	hc := &http.Client{Timeout: DefaultTimeout}
	if c.http != nil {
		copied := *c.http
		hc = &copied
	}
	base := c.baseTransport
	if base == nil {
		base = hc.Transport
	}
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = &Transport{
		Base:    slogx.Transport(base, c.logger),
		Store:   store,
		Logger:  c.logger,
		Metrics: c.metrics,
	}
	c.http = hc

	if c.coordinator == nil {
		c.coordinator = popup.New(store, popup.ExecOpener{}, popup.WithLogger(c.logger), popup.WithClock(c.clock))
	}
	if c.metrics != nil {
		c.metrics.Observe(store.Events())
	}

	store.OnRefresh(func(ctx context.Context) error {
		_, err := c.Refresh(ctx)
		return err
	})
	return c
}

// Store returns the session store the client keeps up to date.
func (c *Client) Store() *session.Store { return c.store }

// Coordinator returns the popup coordinator used for social login.
func (c *Client) Coordinator() *popup.Coordinator { return c.coordinator }

// HTTPClient returns the client's authorizing HTTP client. It can be used
// for calls to any allow-listed API.
func (c *Client) HTTPClient() *http.Client { return c.http }

// DBURL returns the URL of the signed-in user's database called name.
func (c *Client) DBURL(name string) (string, bool) {
	sess, ok := c.store.Session()
	if !ok {
		return "", false
	}
	return sess.DBURL(name)
}

// Authenticate returns the current session, or waits for the next login
// until ctx is done.
func (c *Client) Authenticate(ctx context.Context) (session.Session, error) {
	if sess, ok := c.store.Session(); ok {
		return sess, nil
	}

	logins := make(chan session.Session, 1)
	unsubscribe := c.store.Events().OnLogin(func(s session.Session) {
		select {
		case logins <- s:
		default:
		}
	})
	defer unsubscribe()

	// A login may have landed between the first check and subscribing.
	if sess, ok := c.store.Session(); ok {
		return sess, nil
	}

	select {
	case sess := <-logins:
		return sess, nil
	case <-ctx.Done():
		return session.Session{}, ctx.Err()
	}
}

func (c *Client) checkProvider(provider string) error {
	if !c.store.Config().SupportsProvider(provider) {
		return &ProviderError{Provider: provider}
	}
	return nil
}

func (c *Client) requireAuth() (session.Session, error) {
	if !c.store.Authenticated() {
		return session.Session{}, ErrAuthenticationRequired
	}
	sess, ok := c.store.Session()
	if !ok {
		return session.Session{}, ErrAuthenticationRequired
	}
	return sess, nil
}
