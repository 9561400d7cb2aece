package authsdk

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/aussiebroadwan/sessionkit/pkg/session"
)

// Transport is an http.RoundTripper that attaches the session's bearer
// credential to requests for allow-listed hosts and ends the session when
// one of those hosts answers 401.
type Transport struct {
	// Base sends the request. http.DefaultTransport is used when nil.
	Base  http.RoundTripper
	Store *session.Store

	Logger  *slog.Logger
	Metrics *Metrics

	once  sync.Once
	hosts []string
}

// NewTransport decorates base for store.
func NewTransport(store *session.Store, base http.RoundTripper) *Transport {
	return &Transport{Base: base, Store: store}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// allowed reports whether host may receive the bearer credential. The
// allow-list is read from the store's configuration once.
func (t *Transport) allowed(host string) bool {
	t.once.Do(func() {
		for _, h := range t.Store.Config().EndpointHosts() {
			t.hosts = append(t.hosts, strings.ToLower(h))
		}
	})
	return slices.Contains(t.hosts, strings.ToLower(host))
}

// RoundTrip starts a due refresh, attaches the session bearer for allowed
// hosts and ends the session when one of them answers 401.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.Store.CheckRefresh(req.Context())

	allowed := t.allowed(req.URL.Host)
	if allowed {
		if sess, ok := t.Store.Session(); ok && sess.Token != "" {
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+sess.Bearer())
		}
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return resp, err
	}

	if allowed && resp.StatusCode == http.StatusUnauthorized && t.Store.Authenticated() {
		if t.Store.Invalidate(session.ReasonExpired) {
			t.logger().Info("session rejected by server", "host", req.URL.Host, "path", req.URL.Path)
			t.Metrics.unauthorized()
		}
	}
	return resp, nil
}
