// internal/browser/session.go
package browser

import (
	"context"
	"errors"

	"github.com/cmux-cli/uiverify/internal/failure"
	"github.com/cmux-cli/uiverify/internal/locator"
	"github.com/cmux-cli/uiverify/internal/wait"
)

var (
	ErrUnavailable = errors.New("browser runtime unavailable")
	// ErrSessionClosed matches failure.ErrSessionClosed so callers can check either.
	ErrSessionClosed = failure.ErrSessionClosed
	// ErrStaleRef means the page no longer holds the snapshot a Ref came from.
	ErrStaleRef = errors.New("element reference is stale")
	// ErrNotEditable means the element cannot accept a value.
	ErrNotEditable = errors.New("element is not editable")
)

// Viewport defines the browser viewport size.
type Viewport struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// SessionConfig configures an isolated browsing session.
type SessionConfig struct {
	SessionID string   `json:"session_id"`
	Viewport  Viewport `json:"viewport"`
	UserAgent string   `json:"user_agent,omitempty"`
}

// DefaultSessionConfig returns the recommended session defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Viewport: Viewport{Width: 1280, Height: 720},
	}
}

// Runtime creates isolated sessions on a (possibly shared) browser process.
type Runtime interface {
	NewSession(ctx context.Context, cfg SessionConfig) (Session, error)
	Close() error
}

// Session is an isolated browsing context (cookies and storage are not shared)
// owning one page.
type Session interface {
	ID() string
	Page() Page
	Close() error
}

// Page is the port implemented by browser adapters. Element-level calls take a Ref
// from the most recent Snapshot and fail with ErrStaleRef if the page has moved on.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	// Snapshot captures the page's elements; selectors are evaluated so css
	// descriptors can be resolved against the result.
	Snapshot(ctx context.Context, selectors []string) (*locator.Snapshot, error)
	Click(ctx context.Context, ref locator.Ref) error
	Fill(ctx context.Context, ref locator.Ref, value string) error
	// Activity reports in-flight network and navigation work for settle waits.
	Activity(ctx context.Context) (wait.Activity, error)
	Screenshot(ctx context.Context) ([]byte, error)
}
