// Package session holds the client-side session: the credential bundle, its
// persistence, local expiry detection with server clock-skew compensation, and
// proactive token refresh.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/sessionkit/pkg/clock"
	"github.com/aussiebroadwan/sessionkit/pkg/cryptox"
	"github.com/aussiebroadwan/sessionkit/pkg/storage"
	"github.com/aussiebroadwan/sessionkit/pkg/storage/drivers/file"
	"github.com/aussiebroadwan/sessionkit/pkg/storage/drivers/memory"
)

// StorageKey is the key the session record is persisted under.
const StorageKey = "sessionkit.session"

// Logout reasons.
const (
	ReasonExpired   = "Session expired"
	ReasonLoggedOut = "Logged out"
)

// skewDeadband is the clock difference, in milliseconds, below which the
// local clock is trusted as is.
const skewDeadband = 5000

// ErrInvalidSession is returned when storing a session that lacks an
// identity, a token or its timestamps.
var ErrInvalidSession = errors.New("session: invalid session")

// ErrSessionChanged is returned when a session was replaced or ended while
// an update based on it was in flight.
var ErrSessionChanged = errors.New("session: session changed")

// RefreshFunc renews the current session's token. It is supplied by the
// auth client and runs on its own goroutine.
type RefreshFunc func(ctx context.Context) error

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithStorage overrides the storage driver selected by Config.Storage. The
// caller keeps ownership of the driver.
func WithStorage(st storage.Store) Option {
	return func(s *Store) { s.storage = st }
}

// WithEmitter shares an existing emitter, so listeners registered before New
// observe the startup login event.
func WithEmitter(e *Emitter) Option {
	return func(s *Store) { s.events = e }
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithNavigators sets the navigation sources used by CheckOnNavigation.
func WithNavigators(n ...Navigator) Option {
	return func(s *Store) { s.navigators = append(s.navigators, n...) }
}

// Store is the single owner of the current session. It mirrors the session
// to storage, tears it down on local expiry and starts proactive refreshes.
//
// The zero value is usable and behaves as a Store built from an empty Config
// with in-memory storage.
type Store struct {
	initOnce  sync.Once
	startOnce sync.Once

	cfg        Config
	clock      clock.Clock
	storage    storage.Store
	ownStorage bool
	events     *Emitter
	logger     *slog.Logger
	navigators []Navigator
	limiter    *rate.Limiter

	mu      sync.RWMutex
	current *Session
	// cleared stops Session from reading back a record that could not be
	// removed from storage.
	cleared bool

	refreshMu  sync.RWMutex
	refreshFn  RefreshFunc
	refreshing atomic.Bool

	navMu       sync.Mutex
	unsubscribe []func()
}

// New builds a Store for cfg and runs its startup checks.
func New(cfg Config, opts ...Option) (*Store, error) {
	s := &Store{cfg: cfg.WithDefaults()}
	for _, opt := range opts {
		opt(s)
	}

	if s.storage == nil {
		st, err := openStorage(s.cfg, s.loggerOrDefault())
		if err != nil {
			return nil, err
		}
		s.storage = st
		s.ownStorage = true
	}

	s.init()
	s.Start()
	return s, nil
}

func (s *Store) loggerOrDefault() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// init fills in anything New or the caller left unset.
func (s *Store) init() {
	s.initOnce.Do(func() {
		s.cfg = s.cfg.WithDefaults()
		if s.clock == nil {
			s.clock = clock.Real{}
		}
		if s.storage == nil {
			s.storage = memory.New()
			s.ownStorage = true
		}
		if s.events == nil {
			s.events = &Emitter{}
		}
		if s.logger == nil {
			s.logger = slog.Default()
		}
		if s.cfg.RefreshRetryInterval > 0 {
			s.limiter = rate.NewLimiter(rate.Every(s.cfg.RefreshRetryInterval), 1)
		}
	})
}

// DefaultStoragePath is where StorageLocal keeps the session when no path is
// configured.
func DefaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "sessionkit", "session.json")
}

func openStorage(cfg Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.Storage == StorageSession {
		return memory.New(), nil
	}

	path := cfg.StoragePath
	if path == "" {
		path = DefaultStoragePath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	st, err := file.New(path)
	if errors.Is(err, file.ErrCorrupt) {
		// A damaged record only means there is no session.
		logger.Warn("discarding corrupt session storage", "path", path, "error", err)
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove corrupt storage: %w", err)
		}
		st, err = file.New(path)
	}
	if err != nil {
		return nil, fmt.Errorf("open session storage: %w", err)
	}
	return st, nil
}

// Config returns a copy of the store's configuration.
func (s *Store) Config() Config {
	s.init()
	c := s.cfg
	c.Providers = slices.Clone(c.Providers)
	c.Endpoints = slices.Clone(c.Endpoints)
	return c
}

// Events returns the emitter used for lifecycle events.
func (s *Store) Events() *Emitter {
	s.init()
	return s.events
}

// Clock returns the clock the store measures time with.
func (s *Store) Clock() clock.Clock {
	s.init()
	return s.clock
}

// Session returns a copy of the current session. When nothing is held in
// memory the persisted record is decoded instead.
func (s *Store) Session() (Session, bool) {
	s.init()

	s.mu.RLock()
	cur, cleared := s.current, s.cleared
	s.mu.RUnlock()
	if cur != nil {
		return cur.Clone(), true
	}
	if cleared {
		return Session{}, false
	}
	return s.load()
}

func (s *Store) load() (Session, bool) {
	data, err := s.storage.Get(StorageKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to read session storage", "error", err)
		}
		return Session{}, false
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.logger.Debug("ignoring unreadable session record", "error", err)
		return Session{}, false
	}
	if !sess.Valid() {
		s.logger.Debug("ignoring incomplete session record")
		return Session{}, false
	}
	return sess, true
}

// SetSession persists sess and makes it the current session. When the write
// fails the previous session stays current.
func (s *Store) SetSession(sess Session) error {
	s.init()
	if !sess.Valid() {
		return ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked(sess)
}

// ReplaceIfCurrent stores next only while prev, matched by user id and token,
// is still the current session. It returns ErrSessionChanged otherwise, and
// leaves whatever replaced prev untouched.
func (s *Store) ReplaceIfCurrent(prev, next Session) error {
	s.init()
	if !next.Valid() {
		return ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current
	if cur == nil && !s.cleared {
		if loaded, ok := s.load(); ok {
			cur = &loaded
		}
	}
	if cur == nil || cur.UserID != prev.UserID || cur.Token != prev.Token {
		return ErrSessionChanged
	}
	return s.storeLocked(next)
}

func (s *Store) storeLocked(sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.storage.Set(StorageKey, data); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	c := sess.Clone()
	s.current = &c
	s.cleared = false

	s.logger.Debug("session stored",
		"user_id", sess.UserID,
		"token_fp", cryptox.FingerprintToken(sess.Token),
		"expires", sess.Expires,
	)
	return nil
}

// DeleteSession clears the session from memory and storage. Deleting when
// there is no session is a no-op. If storage cannot be cleared the error is
// returned, but the session stays gone for this store.
func (s *Store) DeleteSession() error {
	s.init()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked()
}

func (s *Store) clearLocked() error {
	s.current = nil
	s.cleared = true
	if err := s.storage.Remove(StorageKey); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// Invalidate tears down the current session and emits a logout event with
// reason. It reports false, and emits nothing, when unauthenticated.
func (s *Store) Invalidate(reason string) bool {
	s.init()

	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	if cur == nil || cur.UserID == "" {
		return false
	}
	return s.teardown(cur, reason)
}

// teardown removes cur if it is still the current session. Concurrent
// callers racing on the same session produce a single logout event.
func (s *Store) teardown(cur *Session, reason string) bool {
	s.mu.Lock()
	if s.current != cur {
		s.mu.Unlock()
		return false
	}
	err := s.clearLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("failed to remove session from storage", "error", err)
	}
	s.logger.Info("session ended", "user_id", cur.UserID, "reason", reason)
	s.events.EmitLogout(reason)
	return true
}

// Authenticated reports whether a session with a user id is held in memory.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil && s.current.UserID != ""
}

func (s *Store) roles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	return s.current.Roles
}

// ConfirmRole reports whether the current session holds role.
func (s *Store) ConfirmRole(role string) bool {
	return slices.Contains(s.roles(), role)
}

// ConfirmAnyRole reports whether the current session holds at least one of
// roles.
func (s *Store) ConfirmAnyRole(roles ...string) bool {
	have := s.roles()
	for _, r := range roles {
		if slices.Contains(have, r) {
			return true
		}
	}
	return false
}

// ConfirmAllRoles reports whether the current session holds every one of
// roles. It is false when unauthenticated.
func (s *Store) ConfirmAllRoles(roles ...string) bool {
	have := s.roles()
	if len(have) == 0 {
		return false
	}
	for _, r := range roles {
		if !slices.Contains(have, r) {
			return false
		}
	}
	return true
}

// serverNow estimates the server's clock in epoch milliseconds. Differences
// inside the dead band are treated as zero.
func (s *Store) serverNow(diff int64) int64 {
	if diff > -skewDeadband && diff < skewDeadband {
		diff = 0
	}
	return clock.Millis(s.clock) + diff
}

// CheckExpired tears the session down when the estimated server time is past
// its expiry. It reports whether a teardown happened.
func (s *Store) CheckExpired() bool {
	s.init()

	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	if cur == nil || cur.UserID == "" {
		return false
	}
	if s.serverNow(cur.ServerTimeDiff) <= cur.Expires {
		return false
	}
	return s.teardown(cur, ReasonExpired)
}

// OnRefresh sets the callback used for proactive refreshes, replacing any
// previous one.
func (s *Store) OnRefresh(fn RefreshFunc) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	s.refreshFn = fn
}

// RefreshInProgress reports whether a proactive refresh is running.
func (s *Store) RefreshInProgress() bool {
	return s.refreshing.Load()
}

// CheckRefresh starts a background refresh once more than RefreshThreshold
// of the token lifetime has elapsed. At most one refresh runs at a time. It
// reports whether a refresh was started and never blocks on it.
func (s *Store) CheckRefresh(ctx context.Context) bool {
	s.init()

	if s.refreshing.Load() {
		return false
	}

	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	if cur == nil || cur.UserID == "" {
		return false
	}

	s.refreshMu.RLock()
	fn := s.refreshFn
	s.refreshMu.RUnlock()
	if fn == nil {
		return false
	}

	if !s.refreshDue(cur) {
		return false
	}

	if !s.refreshing.CompareAndSwap(false, true) {
		return false
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.refreshing.Store(false)
		s.logger.Debug("session refresh throttled")
		return false
	}

	go s.runRefresh(ctx, fn)
	return true
}

func (s *Store) refreshDue(cur *Session) bool {
	lifetime := cur.Expires - cur.Issued
	elapsed := s.serverNow(cur.ServerTimeDiff) - cur.Issued
	if lifetime <= 0 {
		return elapsed > 0
	}
	return float64(elapsed)/float64(lifetime) > s.cfg.RefreshThreshold
}

func (s *Store) runRefresh(ctx context.Context, fn RefreshFunc) {
	defer s.refreshing.Store(false)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RefreshTimeout)
	defer cancel()

	start := s.clock.Now()
	if err := fn(ctx); err != nil {
		if errors.Is(err, ErrSessionChanged) {
			s.logger.Debug("discarding refresh for a session that has ended")
			return
		}
		s.logger.Warn("session refresh failed", "error", err)
		return
	}
	s.logger.Debug("session refreshed", "duration_ms", s.clock.Now().Sub(start).Milliseconds())
}

// Start loads a persisted session, announces it with a login event and runs
// the configured expiry checks. New calls it; a zero-value Store must call
// it explicitly. Later calls are no-ops.
func (s *Store) Start() {
	s.init()
	s.startOnce.Do(func() {
		if sess, ok := s.load(); ok {
			s.mu.Lock()
			if s.current == nil {
				c := sess.Clone()
				s.current = &c
			}
			s.mu.Unlock()
			s.events.EmitLogin(sess)
		}

		switch s.cfg.CheckExpired {
		case CheckStartup:
			s.CheckExpired()
		case CheckOnNavigation:
			s.CheckExpired()
			s.navMu.Lock()
			for _, n := range s.navigators {
				s.unsubscribe = append(s.unsubscribe, n.Subscribe(func() { s.CheckExpired() }))
			}
			s.navMu.Unlock()
		}
	})
}

// WaitRefresh blocks until no proactive refresh is running or ctx is done.
func (s *Store) WaitRefresh(ctx context.Context) error {
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()
	for s.refreshing.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// Close unsubscribes from navigators and closes storage the store opened
// itself. Drivers passed with WithStorage are left to the caller.
func (s *Store) Close() error {
	s.navMu.Lock()
	for _, cancel := range s.unsubscribe {
		cancel()
	}
	s.unsubscribe = nil
	s.navMu.Unlock()

	if s.ownStorage && s.storage != nil {
		return s.storage.Close()
	}
	return nil
}
