package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aussiebroadwan/sessionkit/pkg/authsdk"
	"github.com/aussiebroadwan/sessionkit/pkg/popup"
	"github.com/aussiebroadwan/sessionkit/pkg/session"
	"github.com/aussiebroadwan/sessionkit/pkg/slogx"
	"github.com/aussiebroadwan/sessionkit/pkg/storage"
	"github.com/aussiebroadwan/sessionkit/pkg/storage/drivers/bbolt"
	"github.com/aussiebroadwan/sessionkit/pkg/storage/drivers/file"
	"github.com/aussiebroadwan/sessionkit/pkg/storage/drivers/memory"
	"github.com/aussiebroadwan/sessionkit/pkg/storage/drivers/sqlite"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	closeTimeout = 5 * time.Second
)

// Application holds the session stack of one process.
type Application struct {
	Config Config
	Logger *slog.Logger

	Storage     storage.Store
	Store       *session.Store
	Coordinator *popup.Coordinator
	Client      *authsdk.Client

	Registry *prometheus.Registry
	Metrics  *authsdk.Metrics

	signal *session.Signal
	ticker *session.Ticker
}

// Option adjusts the application before the session store is built.
type Option func(*options)

type options struct {
	opener popup.Opener
	sopts  []session.Option
	copts  []authsdk.Option
}

// WithOpener replaces the system browser used for popups.
func WithOpener(o popup.Opener) Option {
	return func(opts *options) { opts.opener = o }
}

// WithSessionOptions passes extra options to session.New.
func WithSessionOptions(o ...session.Option) Option {
	return func(opts *options) { opts.sopts = append(opts.sopts, o...) }
}

// WithClientOptions passes extra options to authsdk.New.
func WithClientOptions(o ...authsdk.Option) Option {
	return func(opts *options) { opts.copts = append(opts.copts, o...) }
}

// New opens the configured storage and builds the session store, popup
// coordinator and client on top of it.
func New(cfg Config, opts ...Option) (*Application, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	app := &Application{
		Config: cfg,
		Logger: slogx.New(slogx.Config{
			Service: "sessionctl",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		Registry: prometheus.NewRegistry(),
		signal:   &session.Signal{},
	}

	st, err := openStorage(cfg, app.Logger)
	if err != nil {
		return nil, err
	}
	app.Storage = st

	navigators := []session.Navigator{app.signal}
	if cfg.CheckExpired == session.CheckOnNavigation {
		app.ticker = session.NewTicker(0)
		navigators = append(navigators, app.ticker)
	}

	sopts := append([]session.Option{
		session.WithStorage(st),
		session.WithLogger(app.Logger),
		session.WithNavigators(navigators...),
	}, o.sopts...)

	app.Store, err = session.New(cfg.SessionConfig(), sopts...)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	opener := o.opener
	if opener == nil {
		opener = popup.ExecOpener{Timeout: cfg.PopupTimeout}
	}
	app.Coordinator = popup.New(app.Store, opener, popup.WithLogger(app.Logger))

	app.Metrics = authsdk.NewMetrics(app.Registry)
	copts := append([]authsdk.Option{
		authsdk.WithLogger(app.Logger),
		authsdk.WithCoordinator(app.Coordinator),
		authsdk.WithMetrics(app.Metrics),
	}, o.copts...)
	app.Client = authsdk.New(app.Store, copts...)

	if app.ticker != nil {
		app.ticker.Start()
	}

	app.Logger.Debug("session stack ready",
		"storage", cfg.Storage,
		"driver", cfg.StorageDriver,
		"base_url", app.Store.Config().URL(""),
	)
	return app, nil
}

// Navigate signals a navigation, which re-checks expiry when the store is
// configured with CheckOnNavigation.
func (app *Application) Navigate() {
	app.signal.Navigate()
}

// Close waits for a running refresh to finish and releases the storage.
func (app *Application) Close() error {
	if app.ticker != nil {
		app.ticker.Stop()
	}
	app.Metrics.Close()

	var errs []error
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := app.Store.WaitRefresh(ctx); err != nil {
		errs = append(errs, fmt.Errorf("refresh still running: %w", err))
	}
	if err := app.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := app.Storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
	}
	return errors.Join(errs...)
}

// openStorage opens the driver selected by cfg. Session scoped storage is
// always in memory.
func openStorage(cfg Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.Storage == session.StorageSession || cfg.StorageDriver == DriverMemory {
		return memory.New(), nil
	}

	path := cfg.storagePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	switch cfg.StorageDriver {
	case DriverSQLite:
		st, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverBBolt:
		st, err := bbolt.Open(path)
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverFile, "":
		st, err := file.New(path)
		if errors.Is(err, file.ErrCorrupt) {
			logger.Warn("discarding corrupt session file", "path", path, "error", err)
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("failed to remove corrupt session file: %w", err)
			}
			st, err = file.New(path)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open session file: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
