// internal/failure/failure.go
package failure

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a scenario failure.
type Kind string

const (
	KindLocatorNotFound  Kind = "LocatorNotFound"
	KindAmbiguousLocator Kind = "AmbiguousLocator"
	KindNotInteractable  Kind = "NotInteractable"
	KindNavigationError  Kind = "NavigationError"
	KindAssertionTimeout Kind = "AssertionTimeout"
	KindSessionClosed    Kind = "SessionClosed"
	KindInvalidStep      Kind = "InvalidStep"
	// KindArtifact covers screenshots and reports that could not be written.
	KindArtifact Kind = "ArtifactError"
)

// Sentinels for errors.Is checks against a *Error of the matching kind.
var (
	ErrLocatorNotFound  = errors.New("locator not found")
	ErrAmbiguousLocator = errors.New("ambiguous locator")
	ErrNotInteractable  = errors.New("element not interactable")
	ErrNavigation       = errors.New("navigation failed")
	ErrAssertionTimeout = errors.New("assertion timed out")
	ErrSessionClosed    = errors.New("browser session closed")
	ErrInvalidStep      = errors.New("invalid step")
	ErrArtifact         = errors.New("artifact not written")
)

var sentinels = map[Kind]error{
	KindLocatorNotFound:  ErrLocatorNotFound,
	KindAmbiguousLocator: ErrAmbiguousLocator,
	KindNotInteractable:  ErrNotInteractable,
	KindNavigationError:  ErrNavigation,
	KindAssertionTimeout: ErrAssertionTimeout,
	KindSessionClosed:    ErrSessionClosed,
	KindInvalidStep:      ErrInvalidStep,
	KindArtifact:         ErrArtifact,
}

// Error is the typed failure carried by every step outcome.
type Error struct {
	Kind Kind
	// Step is a short human description of the step that failed.
	Step string
	// Descriptor is the rendered element descriptor, empty for page-level steps.
	Descriptor string
	Elapsed    time.Duration
	// Actual is the last observed value for assertion failures.
	Actual  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Descriptor != "" {
		fmt.Fprintf(&b, " [%s]", e.Descriptor)
	}
	if e.Actual != "" {
		fmt.Fprintf(&b, " (last observed: %q)", e.Actual)
	}
	if e.Elapsed > 0 {
		fmt.Fprintf(&b, " after %s", e.Elapsed.Round(time.Millisecond))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	if s, ok := sentinels[e.Kind]; ok && s == target {
		return true
	}
	if t, ok := target.(*Error); ok {
		return t.Kind == e.Kind
	}
	return false
}

// New creates a failure of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err as a failure of the given kind. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// Annotate fills in step context on a failure without overwriting fields already set.
// Errors that are not failures are wrapped with fallback as their kind.
func Annotate(err error, fallback Kind, step, descriptor string, elapsed time.Duration) *Error {
	if err == nil {
		return nil
	}
	fe, ok := As(err)
	if !ok {
		fe = &Error{Kind: fallback, Err: err}
	}
	if fe.Step == "" {
		fe.Step = step
	}
	if fe.Descriptor == "" {
		fe.Descriptor = descriptor
	}
	if fe.Elapsed == 0 {
		fe.Elapsed = elapsed
	}
	return fe
}

// JSON is the report form of a failure.
type JSON struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	Step       string `json:"step,omitempty"`
	Descriptor string `json:"descriptor,omitempty"`
	Actual     string `json:"actual,omitempty"`
	ElapsedMs  int64  `json:"elapsed_ms,omitempty"`
}

// ToJSON flattens err for reports. Errors that are not failures keep only a message.
func ToJSON(err error) *JSON {
	if err == nil {
		return nil
	}
	fe, ok := As(err)
	if !ok {
		return &JSON{Message: err.Error()}
	}
	return &JSON{
		Kind:       fe.Kind,
		Message:    fe.Error(),
		Step:       fe.Step,
		Descriptor: fe.Descriptor,
		Actual:     fe.Actual,
		ElapsedMs:  fe.Elapsed.Milliseconds(),
	}
}
