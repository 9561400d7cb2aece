package popup

import (
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/sessionkit/pkg/idx"
	"github.com/aussiebroadwan/sessionkit/pkg/session"
)

// State is the lifecycle position of a flow.
type State int

const (
	Idle State = iota
	AwaitingCompletion
	Resolved
	Rejected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingCompletion:
		return "awaiting_completion"
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is the successful outcome of a flow. Session is set for a login,
// Provider and Message for a link.
type Result struct {
	Session  *session.Session
	Provider string
	Message  string
}

// Flow is a single popup authorization attempt. It resolves or rejects
// exactly once.
type Flow struct {
	ID        idx.ID
	URL       string
	StartedAt time.Time

	window Window

	once sync.Once
	done chan struct{}

	mu      sync.Mutex
	state   State
	claimed bool
	result  Result
	err     error
}

func newFlow(url string, startedAt time.Time) *Flow {
	return &Flow{
		ID:        idx.NewAt(startedAt),
		URL:       url,
		StartedAt: startedAt,
		done:      make(chan struct{}),
		state:     Idle,
	}
}

// State returns the flow's current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) setState(s State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

// claim reserves the flow for one settling party. It fails once another
// party holds the claim or the flow is no longer awaiting completion.
func (f *Flow) claim() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed || f.state != AwaitingCompletion {
		return false
	}
	f.claimed = true
	return true
}

// Done is closed once the flow has resolved or rejected.
func (f *Flow) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the flow finishes or ctx is done. Giving up on ctx does
// not cancel the flow.
func (f *Flow) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

// finish settles the flow. Only the first call has any effect; it reports
// whether this call was that one.
func (f *Flow) finish(r Result, err error) bool {
	settled := false
	f.once.Do(func() {
		f.mu.Lock()
		f.result, f.err = r, err
		if err != nil {
			f.state = Rejected
		} else {
			f.state = Resolved
		}
		f.mu.Unlock()

		close(f.done)
		settled = true
	})
	return settled
}
