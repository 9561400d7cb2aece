package popup

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// DefaultExecTimeout is how long an ExecOpener window is considered open.
const DefaultExecTimeout = 5 * time.Minute

// ExecOpener opens URLs in the system browser by running a command. A
// browser tab cannot be observed from outside, so its window reports closed
// once Timeout has passed or Close is called.
type ExecOpener struct {
	// Command overrides the platform launcher (xdg-open, open or
	// rundll32). The URL is appended to Args.
	Command string
	Args    []string
	Timeout time.Duration
}

func (o ExecOpener) launcher() (string, []string) {
	if o.Command != "" {
		return o.Command, o.Args
	}
	switch runtime.GOOS {
	case "darwin":
		return "open", nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler"}
	default:
		return "xdg-open", nil
	}
}

func (o ExecOpener) Open(ctx context.Context, url string, _ Options) (Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, args := o.launcher()
	cmd := exec.Command(name, append(append([]string(nil), args...), url)...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch %s: %w", name, err)
	}
	go func() { _ = cmd.Wait() }()

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	return NewTimedWindow(timeout), nil
}

// TimedWindow is a Window that closes itself after a fixed duration.
type TimedWindow struct {
	mu     sync.Mutex
	closed bool
	timer  *time.Timer
}

// NewTimedWindow returns an open window that closes after d.
func NewTimedWindow(d time.Duration) *TimedWindow {
	w := &TimedWindow{}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timer = time.AfterFunc(d, func() { _ = w.Close() })
	return w
}

func (w *TimedWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *TimedWindow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		w.timer.Stop()
	}
	return nil
}
