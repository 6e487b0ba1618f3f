// internal/step/executor.go
package step

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cmux-cli/uiverify/internal/browser"
	"github.com/cmux-cli/uiverify/internal/failure"
	"github.com/cmux-cli/uiverify/internal/locator"
	"github.com/cmux-cli/uiverify/internal/wait"
)

const notFound = "<not found>"

// Options configures an Executor.
type Options struct {
	Wait        wait.Spec
	SettleQuiet time.Duration
	// BaseURL resolves relative navigate and assert_url targets.
	BaseURL string
	// OutputDir receives screenshots whose path is relative.
	OutputDir string
}

// Executor runs single steps against a page.
type Executor struct {
	opts    Options
	metrics *browser.Metrics
	logger  *zap.Logger
}

// NewExecutor creates an Executor. metrics and logger may be nil.
func NewExecutor(opts Options, metrics *browser.Metrics, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.Wait = opts.Wait.WithDefaults()
	if opts.SettleQuiet <= 0 {
		opts.SettleQuiet = wait.DefaultQuiet
	}
	return &Executor{opts: opts, metrics: metrics, logger: logger.Named("executor")}
}

// Options returns the executor's effective options.
func (e *Executor) Options() Options { return e.opts }

// Execute runs st against page. Failures are returned as a Failed outcome carrying a
// *failure.Error; Execute never returns a Skipped outcome.
func (e *Executor) Execute(ctx context.Context, st Step, page browser.Page) Outcome {
	out := Outcome{Step: st}
	start := time.Now()
	err := e.run(ctx, st, page, &out)
	out.Elapsed = time.Since(start)
	if err != nil {
		out.Status = StatusFailed
		out.Err = failure.Annotate(err, fallbackKind(st, err), st.String(), st.Descriptor(), out.Elapsed)
		e.logger.Debug("step failed", zap.String("step", st.String()), zap.Error(out.Err))
		return out
	}
	out.Status = StatusSucceeded
	e.logger.Debug("step succeeded", zap.String("step", st.String()), zap.Duration("elapsed", out.Elapsed))
	return out
}

func (e *Executor) spec(st Step) wait.Spec {
	s := e.opts.Wait
	if t := st.Timeout(); t > 0 {
		s.Timeout = t
	}
	return s.WithDefaults()
}

func (e *Executor) run(ctx context.Context, st Step, page browser.Page, out *Outcome) error {
	if err := st.Validate(); err != nil {
		return failure.Wrap(failure.KindInvalidStep, err, "invalid %s step", st.Kind)
	}
	spec := e.spec(st)

	var err error
	switch st.Kind {
	case KindNavigate:
		return e.navigate(ctx, spec, page, e.AbsURL(st.URL))
	case KindFill:
		err = e.act(ctx, spec, page, *st.Target, true, func(ctx context.Context, ref locator.Ref) error {
			return page.Fill(ctx, ref, st.Value)
		})
	case KindClick:
		err = e.act(ctx, spec, page, *st.Target, false, func(ctx context.Context, ref locator.Ref) error {
			return page.Click(ctx, ref)
		})
	case KindAssertVisible:
		return e.assert(ctx, spec, page, *st.Target, func(n *locator.Node) (bool, string) {
			if n.Visible {
				return true, "visible"
			}
			return false, "hidden"
		})
	case KindAssertText:
		match := textMatcher(st.Expect, st.Pattern)
		return e.assert(ctx, spec, page, *st.Target, func(n *locator.Node) (bool, string) {
			text := normalize(n.Text)
			return match(text), text
		})
	case KindAssertAttribute:
		match := valueMatcher(st.Expect, st.Pattern)
		return e.assert(ctx, spec, page, *st.Target, func(n *locator.Node) (bool, string) {
			v, ok := n.Attr(st.Attribute)
			if !ok {
				return false, fmt.Sprintf("<no %s attribute>", st.Attribute)
			}
			return match(v), v
		})
	case KindAssertURL:
		return e.assertURL(ctx, spec, page, st)
	case KindScreenshot:
		path, err := e.Capture(ctx, page, st.Path)
		out.Artifact = path
		return err
	case KindSleep:
		return wait.Warmup(ctx, time.Duration(st.DurationMs)*time.Millisecond)
	case KindSettle:
		return e.settle(ctx, spec, page)
	}
	if err != nil {
		return err
	}
	if st.Settle {
		return e.settle(ctx, spec, page)
	}
	return nil
}

func fallbackKind(st Step, err error) failure.Kind {
	if errors.Is(err, failure.ErrSessionClosed) {
		return failure.KindSessionClosed
	}
	switch st.Kind {
	case KindNavigate, KindSettle:
		return failure.KindNavigationError
	case KindFill, KindClick:
		return failure.KindNotInteractable
	case KindAssertVisible, KindAssertText, KindAssertAttribute, KindAssertURL:
		return failure.KindAssertionTimeout
	case KindScreenshot:
		return failure.KindArtifact
	}
	return failure.KindInvalidStep
}

// AbsURL resolves raw against the base URL.
func (e *Executor) AbsURL(raw string) string {
	if e.opts.BaseURL == "" {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil || ref.IsAbs() {
		return raw
	}
	base, err := url.Parse(e.opts.BaseURL)
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}

func (e *Executor) navigate(ctx context.Context, spec wait.Spec, page browser.Page, target string) error {
	nctx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()
	e.metrics.RecordNavigate()
	if err := page.Navigate(nctx, target); err != nil {
		if errors.Is(err, failure.ErrSessionClosed) {
			return failure.Wrap(failure.KindSessionClosed, err, "navigate %s", target)
		}
		return failure.Wrap(failure.KindNavigationError, err, "navigate %s", target)
	}
	return e.settle(ctx, spec, page)
}

func (e *Executor) settle(ctx context.Context, spec wait.Spec, page browser.Page) error {
	elapsed, err := wait.Settle(ctx, spec, e.opts.SettleQuiet, page.Activity)
	if err == nil {
		return nil
	}
	if errors.Is(err, wait.ErrTimeout) {
		return &failure.Error{
			Kind:    failure.KindNavigationError,
			Message: fmt.Sprintf("page did not settle within %s", spec.Timeout),
			Elapsed: elapsed,
		}
	}
	return err
}

func (e *Executor) snapshot(ctx context.Context, page browser.Page, selectors []string) (*locator.Snapshot, error) {
	start := time.Now()
	snap, err := page.Snapshot(ctx, selectors)
	if err == nil {
		e.metrics.RecordSnapshot(time.Since(start))
	}
	return snap, err
}

// act waits until d resolves to an actionable element and performs fn on it. A ref
// invalidated by a re-render between snapshot and action is retried.
func (e *Executor) act(ctx context.Context, spec wait.Spec, page browser.Page, d locator.Descriptor, editable bool, fn func(context.Context, locator.Ref) error) error {
	selectors := d.Selectors()
	elapsed, err := wait.Await(ctx, spec, func(ctx context.Context) (bool, error) {
		snap, err := e.snapshot(ctx, page, selectors)
		if err != nil {
			return false, err
		}
		ref, err := locator.Resolve(snap, d)
		if err != nil {
			if errors.Is(err, failure.ErrLocatorNotFound) {
				return false, wait.Retry(err)
			}
			return false, err
		}
		if reason := notActionable(snap.Node(ref), editable); reason != "" {
			return false, wait.Retry(&failure.Error{
				Kind:    failure.KindNotInteractable,
				Message: "element is " + reason,
				Actual:  reason,
			})
		}
		err = fn(ctx, ref)
		e.metrics.RecordAction(err == nil)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, browser.ErrStaleRef):
			return false, wait.Retry(failure.Wrap(failure.KindNotInteractable, err, "element was replaced before it could be used"))
		case errors.Is(err, browser.ErrNotEditable):
			return false, failure.Wrap(failure.KindNotInteractable, err, "element cannot accept input")
		case errors.Is(err, failure.ErrSessionClosed):
			return false, failure.Wrap(failure.KindSessionClosed, err, "page closed")
		}
		return false, failure.Wrap(failure.KindNotInteractable, err, "action failed")
	})
	if err == nil {
		return nil
	}
	var te *wait.TimeoutError
	if errors.As(err, &te) {
		if last, ok := failure.As(te.Last); ok {
			fe := *last
			fe.Message = fmt.Sprintf("%s after waiting %s", fe.Message, spec.Timeout)
			fe.Elapsed = elapsed
			return &fe
		}
		return &failure.Error{Kind: failure.KindNotInteractable, Message: "element never became actionable", Elapsed: elapsed, Err: err}
	}
	return err
}

func notActionable(n *locator.Node, editable bool) string {
	switch {
	case n == nil:
		return "detached"
	case !n.Visible:
		return "not visible"
	case !n.Enabled:
		return "disabled"
	case !n.Hit:
		return "obscured by another element"
	case editable && !n.Editable:
		return "not editable"
	}
	return ""
}

// assert polls until check holds for the element d resolves to. A missing element
// counts as not yet true; an ambiguous one fails at once.
func (e *Executor) assert(ctx context.Context, spec wait.Spec, page browser.Page, d locator.Descriptor, check func(*locator.Node) (bool, string)) error {
	selectors := d.Selectors()
	actual := notFound
	elapsed, err := wait.Await(ctx, spec, func(ctx context.Context) (bool, error) {
		snap, err := e.snapshot(ctx, page, selectors)
		if err != nil {
			return false, err
		}
		ref, err := locator.Resolve(snap, d)
		if err != nil {
			if errors.Is(err, failure.ErrLocatorNotFound) {
				actual = notFound
				return false, nil
			}
			return false, err
		}
		ok, observed := check(snap.Node(ref))
		actual = observed
		return ok, nil
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, wait.ErrTimeout) {
		return &failure.Error{
			Kind:    failure.KindAssertionTimeout,
			Message: fmt.Sprintf("condition not met within %s", spec.Timeout),
			Actual:  actual,
			Elapsed: elapsed,
		}
	}
	return err
}

func (e *Executor) assertURL(ctx context.Context, spec wait.Spec, page browser.Page, st Step) error {
	var match func(string) bool
	if st.Pattern {
		match = regexp.MustCompile(st.URL).MatchString
	} else {
		want := e.AbsURL(st.URL)
		match = func(got string) bool { return got == want }
	}
	actual := ""
	elapsed, err := wait.Await(ctx, spec, func(ctx context.Context) (bool, error) {
		got, err := page.URL(ctx)
		if err != nil {
			return false, err
		}
		actual = got
		return match(got), nil
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, wait.ErrTimeout) {
		return &failure.Error{
			Kind:    failure.KindAssertionTimeout,
			Message: fmt.Sprintf("url did not match %q within %s", st.URL, spec.Timeout),
			Actual:  actual,
			Elapsed: elapsed,
		}
	}
	return err
}

// Capture writes a screenshot of page to path, relative to the output directory, and
// returns where it was written.
func (e *Executor) Capture(ctx context.Context, page browser.Page, path string) (string, error) {
	data, err := page.Screenshot(ctx)
	if err != nil {
		if errors.Is(err, failure.ErrSessionClosed) {
			return "", failure.Wrap(failure.KindSessionClosed, err, "screenshot")
		}
		return "", failure.Wrap(failure.KindArtifact, err, "screenshot")
	}
	e.metrics.RecordScreenshot()
	if !filepath.IsAbs(path) && e.opts.OutputDir != "" {
		path = filepath.Join(e.opts.OutputDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", failure.Wrap(failure.KindArtifact, err, "create screenshot directory")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", failure.Wrap(failure.KindArtifact, err, "write screenshot")
	}
	return path, nil
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func textMatcher(expected string, pattern bool) func(string) bool {
	if pattern {
		return regexp.MustCompile(expected).MatchString
	}
	want := normalize(expected)
	return func(s string) bool { return strings.Contains(s, want) }
}

func valueMatcher(expected string, pattern bool) func(string) bool {
	if pattern {
		return regexp.MustCompile(expected).MatchString
	}
	return func(s string) bool { return s == expected }
}
