package session

import (
	"sync"
	"time"
)

// Navigator signals application navigation. The store re-checks expiry on
// every signal when configured with CheckOnNavigation.
type Navigator interface {
	Subscribe(fn func()) (cancel func())
}

// NavigatorFunc adapts a subscribe function to Navigator.
type NavigatorFunc func(fn func()) (cancel func())

func (f NavigatorFunc) Subscribe(fn func()) func() { return f(fn) }

// Signal is a Navigator fired by hand, e.g. once per CLI command.
type Signal struct {
	subs listeners[struct{}]
}

func (s *Signal) Subscribe(fn func()) func() {
	return s.subs.add(func(struct{}) { fn() })
}

// Navigate notifies every subscriber.
func (s *Signal) Navigate() {
	s.subs.emit(struct{}{}, nil)
}

// Ticker is a Navigator that fires on a fixed interval from a background
// worker. It starts with Start and must be stopped with Stop.
type Ticker struct {
	Interval time.Duration

	signal Signal

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewTicker creates a ticker. If interval is 0 or negative, defaults to 1 minute.
func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Ticker{
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (t *Ticker) Subscribe(fn func()) func() { return t.signal.Subscribe(fn) }

// Start begins the background worker. It is non-blocking.
func (t *Ticker) Start() {
	go t.run()
}

// Stop shuts down the worker and waits for it to exit. It must only be
// called after Start.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	<-t.doneCh
}

func (t *Ticker) run() {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.signal.Navigate()
		case <-t.stopCh:
			return
		}
	}
}
