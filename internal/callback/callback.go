// Package callback runs the loopback HTTP server a browser popup lands on at
// the end of a social login or link. The auth server's callback page must
// redirect to URL().
package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aussiebroadwan/sessionkit/pkg/httpx"
	"github.com/aussiebroadwan/sessionkit/pkg/popup"
	"github.com/aussiebroadwan/sessionkit/pkg/slogx"
)

// Path is where completions are received.
const Path = "/callback"

// Server is a running loopback server.
type Server struct {
	ln        net.Listener
	srv       *http.Server
	logger    *slog.Logger
	startTime time.Time
	version   string
	done      chan error
}

// Listen binds addr and starts serving completions for c.
func Listen(addr string, c *popup.Coordinator, logger *slog.Logger, version string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{
		ln:        ln,
		logger:    logger,
		startTime: time.Now(),
		version:   version,
		done:      make(chan error, 1),
	}
	s.srv = &http.Server{
		Handler:           s.routes(c),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()

	logger.Debug("callback server listening", "url", s.URL())
	return s, nil
}

func (s *Server) routes(c *popup.Coordinator) http.Handler {
	r := chi.NewRouter()
	r.Use(slogx.HTTPMiddleware(s.logger))

	complete := popup.Handler(c)
	r.Method(http.MethodGet, Path, complete)
	r.Method(http.MethodPost, Path, complete)
	r.Get("/livez", s.livez)
	return r
}

type health struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

func (s *Server) livez(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, health{
		Status:  "ok",
		Uptime:  time.Since(s.startTime).String(),
		Version: s.version,
	})
}

// URL is the completion endpoint, e.g. http://127.0.0.1:8765/callback.
func (s *Server) URL() string {
	return "http://" + s.ln.Addr().String() + Path
}

// Shutdown stops the server, waiting for in-flight requests until ctx is
// done.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		_ = s.srv.Close()
		return fmt.Errorf("callback server shutdown: %w", err)
	}
	return <-s.done
}
