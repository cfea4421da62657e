// Package browser manages the browser sessions batch tasks drive.
//
// A batch acquires exactly one session for its lifetime and every task in
// the batch borrows it; the handle is opaque to callers. The playwright
// backend runs a local Chromium; remote backends can implement Provider
// against a hosted browser service.
package browser

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned for a handle that does not name a live
// session.
var ErrSessionNotFound = errors.New("browser: session not found")

// ErrNoControlURL is returned by backends that have no remote viewer for
// a session. Callers treat it as "nothing to surface", not a failure.
var ErrNoControlURL = errors.New("browser: no control URL available")

// Provider acquires and releases browser sessions.
type Provider interface {
	// Create launches a new session and returns its opaque handle.
	Create(ctx context.Context) (string, error)

	// Pause idles the session between tasks without releasing it. Paused
	// sessions keep their page state.
	Pause(ctx context.Context, handle string) error

	// Resume reactivates a paused session.
	Resume(ctx context.Context, handle string) error

	// Destroy releases the session and all its resources. Destroying an
	// unknown handle returns ErrSessionNotFound.
	Destroy(ctx context.Context, handle string) error

	// ControlURL returns a URL where a human can watch or take over the
	// session, when the backend offers one.
	ControlURL(ctx context.Context, handle string) (string, error)

	// Session resolves a handle to the live session for page actions.
	Session(handle string) (*Session, error)
}
