package authsdk

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aussiebroadwan/sessionkit/pkg/session"
)

// Metrics counts session activity. A nil *Metrics records nothing.
type Metrics struct {
	Logins          prometheus.Counter
	Logouts         *prometheus.CounterVec
	Refreshes       prometheus.Counter
	RefreshFailures prometheus.Counter
	Unauthorized    prometheus.Counter
	Links           *prometheus.CounterVec

	mu          sync.Mutex
	unsubscribe []func()
}

// NewMetrics registers the session collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Logins: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionkit",
			Name:      "logins_total",
			Help:      "Sessions established by password, social or token login.",
		}),
		Logouts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessionkit",
			Name:      "logouts_total",
			Help:      "Sessions ended, by reason.",
		}, []string{"reason"}),
		Refreshes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionkit",
			Name:      "refreshes_total",
			Help:      "Successful token refreshes.",
		}),
		RefreshFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionkit",
			Name:      "refresh_failures_total",
			Help:      "Token refreshes that failed.",
		}),
		Unauthorized: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionkit",
			Name:      "unauthorized_teardowns_total",
			Help:      "Sessions ended because an allow-listed host answered 401.",
		}),
		Links: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessionkit",
			Name:      "links_total",
			Help:      "Providers linked to the account.",
		}, []string{"provider"}),
	}
}

// Observe counts the events emitted by e until Close is called.
func (m *Metrics) Observe(e *session.Emitter) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribe = append(m.unsubscribe,
		e.OnLogin(func(session.Session) { m.Logins.Inc() }),
		e.OnLogout(func(reason string) { m.Logouts.WithLabelValues(reason).Inc() }),
		e.OnRefresh(func(session.Session) { m.Refreshes.Inc() }),
		e.OnLink(func(provider string) { m.Links.WithLabelValues(provider).Inc() }),
	)
}

// Close stops observing emitters.
func (m *Metrics) Close() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fn := range m.unsubscribe {
		fn()
	}
	m.unsubscribe = nil
}

func (m *Metrics) refreshFailed() {
	if m != nil {
		m.RefreshFailures.Inc()
	}
}

func (m *Metrics) unauthorized() {
	if m != nil {
		m.Unauthorized.Inc()
	}
}
