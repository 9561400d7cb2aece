package popup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/sessionkit/pkg/clock"
	"github.com/aussiebroadwan/sessionkit/pkg/cryptox"
	"github.com/aussiebroadwan/sessionkit/pkg/session"
)

// DefaultPollInterval is how often an open window is checked for closure.
const DefaultPollInterval = 500 * time.Millisecond

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPollInterval sets how often the window is checked for closure.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithClock overrides the clock used to stamp the server time difference.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

// WithLogger sets the coordinator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// Coordinator runs popup flows against a session store. Only the most
// recently started flow receives completions; starting a new flow while one
// is pending supersedes it, and the old flow can then only end by its window
// closing.
type Coordinator struct {
	store    *session.Store
	opener   Opener
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	pending *Flow
}

// New creates a coordinator. It panics if store or opener is nil.
func New(store *session.Store, opener Opener, opts ...Option) *Coordinator {
	if store == nil {
		panic("popup: nil session store")
	}
	if opener == nil {
		panic("popup: nil opener")
	}

	c := &Coordinator{
		store:    store,
		opener:   opener,
		clock:    store.Clock(),
		logger:   slog.Default(),
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start opens url in a new window and begins watching it.
func (c *Coordinator) Start(ctx context.Context, url string, opts Options) (*Flow, error) {
	opts = opts.withDefaults()
	f := newFlow(url, c.clock.Now())

	w, err := c.opener.Open(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("open popup window: %w", err)
	}
	f.window = w
	f.setState(AwaitingCompletion)

	c.mu.Lock()
	c.pending = f
	c.mu.Unlock()

	c.logger.Info("oauth popup opened", "flow_id", f.ID, "window", opts.WindowName, "title", opts.WindowTitle)

	go c.poll(f)
	return f, nil
}

// Pending returns the flow awaiting completion, if any.
func (c *Coordinator) Pending() *Flow {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Complete delivers the outcome of the pending flow. A session completes a
// login: it is stamped with the server clock difference, stored and
// announced. A provider completes a link. Otherwise the flow is rejected with
// err. The flow is claimed before any of this happens, so a window closing
// meanwhile cannot cancel it.
func (c *Coordinator) Complete(err error, sess *session.Session, provider string) error {
	c.mu.Lock()
	f := c.pending
	c.pending = nil
	c.mu.Unlock()

	if f == nil || !f.claim() {
		return ErrNoPendingFlow
	}

	var (
		result Result
		cause  error
	)
	switch {
	case err == nil && sess != nil:
		s := sess.Clone()
		s.ServerTimeDiff = s.Issued - clock.Millis(c.clock)
		if serr := c.store.SetSession(s); serr != nil {
			cause = serr
			break
		}
		c.store.Events().EmitLogin(s)
		result = Result{Session: &s}
		c.logger.Info("oauth login completed",
			"flow_id", f.ID,
			"user_id", s.UserID,
			"token_fp", cryptox.FingerprintToken(s.Token),
		)
	case err == nil && provider != "":
		c.store.Events().EmitLink(provider)
		result = Result{Provider: provider, Message: LinkedMessage(provider)}
		c.logger.Info("oauth link completed", "flow_id", f.ID, "provider", provider)
	case err != nil:
		cause = err
	default:
		cause = ErrEmptyCompletion
	}

	if cause != nil {
		c.logger.Warn("oauth flow rejected", "flow_id", f.ID, "error", cause)
	}
	c.settle(f, result, cause)
	return nil
}

func (c *Coordinator) settle(f *Flow, r Result, err error) {
	if !f.finish(r, err) {
		return
	}
	if f.window != nil && !f.window.Closed() {
		if cerr := f.window.Close(); cerr != nil {
			c.logger.Debug("failed to close popup window", "flow_id", f.ID, "error", cerr)
		}
	}
}

// poll rejects f with ErrCancelled once its window closes. It exits as soon
// as the flow settles either way. A flow already claimed by Complete is left
// for Complete to settle.
func (c *Coordinator) poll(f *Flow) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.Done():
			return
		case <-ticker.C:
			if !f.window.Closed() || !f.claim() {
				continue
			}

			c.mu.Lock()
			if c.pending == f {
				c.pending = nil
			}
			c.mu.Unlock()

			if f.finish(Result{}, ErrCancelled) {
				c.logger.Info("oauth popup closed before completion", "flow_id", f.ID)
			}
			return
		}
	}
}
