// internal/failure/failure_test.go
package failure

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("step 3: %w", New(KindAmbiguousLocator, "2 elements match"))

	assert.ErrorIs(t, err, ErrAmbiguousLocator)
	assert.NotErrorIs(t, err, ErrLocatorNotFound)
	assert.ErrorIs(t, err, &Error{Kind: KindAmbiguousLocator})
	assert.Equal(t, KindAmbiguousLocator, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("net::ERR_NAME_NOT_RESOLVED")
	err := Wrap(KindNavigationError, cause, "navigate to %s", "http://app.test")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrNavigation)
	assert.Equal(t, "NavigationError: navigate to http://app.test: net::ERR_NAME_NOT_RESOLVED", err.Error())
	assert.Nil(t, Wrap(KindNavigationError, nil, "unused"))
}

func TestErrorString(t *testing.T) {
	err := &Error{
		Kind:       KindAssertionTimeout,
		Message:    "text did not match",
		Descriptor: `text="Hello"`,
		Actual:     "Hi",
		Elapsed:    1500 * time.Millisecond,
	}
	assert.Equal(t, `AssertionTimeout: text did not match [text="Hello"] (last observed: "Hi") after 1.5s`, err.Error())
}

func TestAnnotate(t *testing.T) {
	assert.Nil(t, Annotate(nil, KindInvalidStep, "s", "d", time.Second))

	plain := errors.New("boom")
	fe := Annotate(plain, KindNotInteractable, "click button", `role=button`, time.Second)
	assert.Equal(t, KindNotInteractable, fe.Kind)
	assert.Equal(t, "click button", fe.Step)
	assert.ErrorIs(t, fe, plain)

	orig := &Error{Kind: KindLocatorNotFound, Descriptor: "label=Email", Elapsed: time.Millisecond}
	got := Annotate(fmt.Errorf("wrapped: %w", orig), KindNotInteractable, "fill", "other", time.Hour)
	assert.Same(t, orig, got)
	assert.Equal(t, KindLocatorNotFound, got.Kind)
	assert.Equal(t, "label=Email", got.Descriptor, "existing fields are kept")
	assert.Equal(t, time.Millisecond, got.Elapsed)
	assert.Equal(t, "fill", got.Step)
}

func TestToJSON(t *testing.T) {
	assert.Nil(t, ToJSON(nil))
	assert.Equal(t, &JSON{Message: "plain"}, ToJSON(errors.New("plain")))

	j := ToJSON(&Error{Kind: KindSessionClosed, Message: "page closed", Step: "click", Elapsed: 2 * time.Second})
	require.NotNil(t, j)
	assert.Equal(t, KindSessionClosed, j.Kind)
	assert.Equal(t, int64(2000), j.ElapsedMs)
	assert.Equal(t, "click", j.Step)
}
