// Package popup coordinates browser-based OAuth flows. A flow opens an
// external window on the auth server's provider page and waits for the
// server's redirect target to report the outcome through Complete. Closing
// the window before that happens cancels the flow.
package popup

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrCancelled rejects a flow whose window was closed before completion.
	ErrCancelled = errors.New("Authorization cancelled")

	// ErrNoPendingFlow is returned by Complete when nothing is awaiting a
	// completion.
	ErrNoPendingFlow = errors.New("popup: no pending flow")

	// ErrEmptyCompletion rejects a completion that carried neither a
	// session, a linked provider nor an error.
	ErrEmptyCompletion = errors.New("popup: empty completion")
)

// Error is a failure reported by the auth server through the popup.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

const (
	DefaultWindowName     = "Social Login"
	DefaultWindowFeatures = "location=0,status=0,width=800,height=600"
)

// Options describe the window to open.
type Options struct {
	WindowName     string
	WindowFeatures string
	WindowTitle    string
}

func (o Options) withDefaults() Options {
	if o.WindowName == "" {
		o.WindowName = DefaultWindowName
	}
	if o.WindowFeatures == "" {
		o.WindowFeatures = DefaultWindowFeatures
	}
	return o
}

// LoginOptions returns the window options for signing in with provider.
func LoginOptions(provider string) Options {
	return Options{WindowTitle: "Login with " + Capitalize(provider)}
}

// LinkOptions returns the window options for linking provider to the
// current account.
func LinkOptions(provider string) Options {
	return Options{WindowTitle: "Link your account to " + Capitalize(provider)}
}

// Window is an opened popup.
type Window interface {
	// Closed reports whether the user has closed the window.
	Closed() bool
	// Close closes the window if it is still open.
	Close() error
}

// Opener opens popup windows.
type Opener interface {
	Open(ctx context.Context, url string, opts Options) (Window, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url string, opts Options) (Window, error)

func (f OpenerFunc) Open(ctx context.Context, url string, opts Options) (Window, error) {
	return f(ctx, url, opts)
}

// Capitalize upper-cases the first letter of s.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// LinkedMessage is the result message of a successful provider link.
func LinkedMessage(provider string) string {
	return Capitalize(strings.TrimSpace(provider)) + " successfully linked."
}
