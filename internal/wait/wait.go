// internal/wait/wait.go
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default bounds used when a Spec leaves a field zero.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
	DefaultQuiet        = 500 * time.Millisecond
)

// ErrTimeout is returned (wrapped in *TimeoutError) when a wait exhausts its bound.
var ErrTimeout = errors.New("wait timed out")

// Spec bounds a single blocking wait.
type Spec struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// WithDefaults fills zero fields from the package defaults.
func (s Spec) WithDefaults() Spec {
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.PollInterval <= 0 {
		s.PollInterval = DefaultPollInterval
	}
	if s.PollInterval > s.Timeout {
		s.PollInterval = s.Timeout
	}
	return s
}

// Validate rejects specs that cannot bound a wait.
func (s Spec) Validate() error {
	if s.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", s.Timeout)
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", s.PollInterval)
	}
	return nil
}

// TimeoutError reports an exhausted wait and the last error the predicate returned.
type TimeoutError struct {
	Elapsed time.Duration
	Last    error
}

func (e *TimeoutError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("timed out after %s: %v", e.Elapsed.Round(time.Millisecond), e.Last)
	}
	return fmt.Sprintf("timed out after %s", e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// Predicate reports whether the awaited condition holds.
//
// A non-nil error aborts the wait unless it is wrapped with Retry, in which case the
// condition is treated as not yet true and the error is kept for the timeout report.
type Predicate func(ctx context.Context) (bool, error)

type retryable struct{ err error }

func (r retryable) Error() string { return r.err.Error() }
func (r retryable) Unwrap() error { return r.err }

// Retry marks err as transient for Await.
func Retry(err error) error {
	if err == nil {
		return nil
	}
	return retryable{err: err}
}

func isRetry(err error) (error, bool) {
	var r retryable
	if errors.As(err, &r) {
		return r.err, true
	}
	return nil, false
}

// Await polls pred every spec.PollInterval until it returns true, returns a
// non-retryable error, or spec.Timeout elapses. The first check happens immediately.
// It returns the elapsed time alongside the outcome.
func Await(ctx context.Context, spec Spec, pred Predicate) (time.Duration, error) {
	spec = spec.WithDefaults()
	start := time.Now()
	deadline := start.Add(spec.Timeout)

	pctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(spec.PollInterval)
	defer ticker.Stop()

	var last error
	for {
		ok, err := pred(pctx)
		if err != nil {
			inner, transient := isRetry(err)
			if !transient && !(errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
				return time.Since(start), err
			}
			if transient {
				last = inner
			}
		} else if ok {
			return time.Since(start), nil
		}

		if ctx.Err() != nil {
			return time.Since(start), ctx.Err()
		}
		if !time.Now().Before(deadline) {
			return time.Since(start), &TimeoutError{Elapsed: time.Since(start), Last: last}
		}

		select {
		case <-ctx.Done():
			return time.Since(start), ctx.Err()
		case <-pctx.Done():
			// Deadline reached: the next iteration performs one last check.
		case <-ticker.C:
		}
	}
}

// Activity describes in-flight page work observed by a driver.
type Activity struct {
	Inflight   int
	LastChange time.Time
	Loading    bool
}

// ActivityFunc samples the page's current activity.
type ActivityFunc func(ctx context.Context) (Activity, error)

// Settle blocks until the page reports no in-flight work and nothing has changed for
// quiet, bounded by spec.Timeout.
func Settle(ctx context.Context, spec Spec, quiet time.Duration, sample ActivityFunc) (time.Duration, error) {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	return Await(ctx, spec, func(ctx context.Context) (bool, error) {
		a, err := sample(ctx)
		if err != nil {
			return false, err
		}
		if a.Loading || a.Inflight > 0 {
			return false, nil
		}
		return time.Since(a.LastChange) >= quiet, nil
	})
}

// Warmup sleeps for d. It exists for the one case where readiness of the target
// cannot be observed (the server is still starting) and must only run before a
// scenario begins.
func Warmup(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
