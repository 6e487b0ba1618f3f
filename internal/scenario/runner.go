// internal/scenario/runner.go
package scenario

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cmux-cli/uiverify/internal/browser"
	"github.com/cmux-cli/uiverify/internal/failure"
	"github.com/cmux-cli/uiverify/internal/step"
	"github.com/cmux-cli/uiverify/internal/wait"
)

const (
	failureScreenshot = "failure.png"
	failureReport     = "failure.json"
	resultFile        = "result.json"

	defaultCaptureTimeout = 10 * time.Second
)

// Options configures a Runner.
type Options struct {
	// Exec configures step execution. Its OutputDir is the artifact root; each run
	// writes under <OutputDir>/<scenario-slug>/<run-id>. An empty OutputDir disables
	// result and failure files.
	Exec step.Options
	// Session is the template for every session; SessionID is set per run.
	Session browser.SessionConfig
	// Warmup is slept once by RunAll before the first session opens.
	Warmup time.Duration
	// Parallel bounds how many scenarios RunAll runs at once.
	Parallel int
	// CaptureTimeout bounds failure diagnostics.
	CaptureTimeout time.Duration
}

// Option customises a Runner.
type Option func(*Runner)

// WithMetrics records scenario and step metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithTracer emits a span per scenario and per step.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// WithRunIDs replaces the ulid run ID source.
func WithRunIDs(next func() string) Option {
	return func(r *Runner) { r.newID = next }
}

// Runner drives scenarios through their lifecycle, one session per run.
type Runner struct {
	manager *browser.Manager
	opts    Options
	logger  *zap.Logger
	gate    *step.Gate
	metrics *Metrics
	tracer  trace.Tracer
	newID   func() string
}

// NewRunner creates a Runner. logger may be nil.
func NewRunner(manager *browser.Manager, opts Options, logger *zap.Logger, options ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = defaultCaptureTimeout
	}
	if opts.Session.Viewport == (browser.Viewport{}) {
		opts.Session.Viewport = browser.DefaultSessionConfig().Viewport
	}
	r := &Runner{
		manager: manager,
		opts:    opts,
		logger:  logger.Named("runner"),
		gate:    step.NewGate(opts.Exec.Wait.Timeout, logger),
		newID:   func() string { return ulid.Make().String() },
	}
	for _, o := range options {
		o(r)
	}
	if r.tracer == nil {
		r.tracer = (*TracerProvider)(nil).Tracer()
	}
	return r
}

// RunAll sleeps the configured warm-up once and then runs every scenario, at most
// Parallel at a time, each in its own session. Results keep the order of scenarios.
// The error is non-nil only if ctx ended before the warm-up completed.
func (r *Runner) RunAll(ctx context.Context, scenarios []*Scenario) ([]*Result, error) {
	if r.opts.Warmup > 0 {
		r.logger.Info("warming up", zap.Duration("delay", r.opts.Warmup))
		if err := wait.Warmup(ctx, r.opts.Warmup); err != nil {
			return nil, err
		}
	}

	results := make([]*Result, len(scenarios))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallel)
	for i, sc := range scenarios {
		g.Go(func() error {
			results[i] = r.Run(gctx, sc)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// run is the per-execution state of one scenario.
type run struct {
	sc     *Scenario
	res    *Result
	exec   *step.Executor
	page   browser.Page
	logger *zap.Logger
}

// Run executes sc in a fresh session. The session is closed exactly once whatever
// happens, and the returned Result is always Completed.
func (r *Runner) Run(ctx context.Context, sc *Scenario) *Result {
	res := &Result{
		Scenario:  sc.Name,
		Source:    sc.Source,
		RunID:     r.newID(),
		State:     StatePending,
		StartedAt: time.Now().UTC(),
	}
	if r.opts.Exec.OutputDir != "" {
		res.Dir = filepath.Join(r.opts.Exec.OutputDir, sc.Slug(), res.RunID)
	}
	logger := r.logger.With(zap.String("scenario", sc.Name), zap.String("run_id", res.RunID))

	ctx, span := r.tracer.Start(ctx, "scenario "+sc.Name, trace.WithAttributes(
		AttrScenario.String(sc.Name),
		AttrRunID.String(res.RunID),
	))
	defer span.End()

	execOpts := r.opts.Exec
	execOpts.OutputDir = res.Dir
	exec := step.NewExecutor(execOpts, r.manager.Metrics(), logger)

	cfg := r.opts.Session
	cfg.SessionID = res.RunID

	logger.Info("scenario started", zap.Int("steps", sc.Count()))
	var bodyErr error
	entered := false
	err := r.manager.WithSession(ctx, cfg, func(ctx context.Context, sess browser.Session) error {
		entered = true
		res.advance(StateRunning)
		rn := &run{sc: sc, res: res, exec: exec, page: sess.Page(), logger: logger}
		if failed := r.runSteps(ctx, rn, sc.Steps, "steps"); failed != nil {
			res.Failure = r.captureFailure(ctx, rn, *failed)
			bodyErr = failed.Err
		}
		return bodyErr
	})
	switch {
	case !entered:
		res.Err = failure.Annotate(err, failure.KindSessionClosed, "", "", 0)
		logger.Error("session could not be opened", zap.Error(err))
	case err != nil && bodyErr == nil:
		// The body succeeded, so err can only come from closing the session.
		res.TeardownErr = err
	}

	res.Status = step.StatusSucceeded
	if res.Err != nil || res.Failure != nil || res.Count(step.StatusFailed) > 0 {
		res.Status = step.StatusFailed
	}
	res.advance(StateCompleted)
	res.Elapsed = time.Since(res.StartedAt)
	r.metrics.recordScenario(res.Status, res.Elapsed)

	span.SetAttributes(AttrStatus.String(string(res.Status)))
	if res.Status == step.StatusFailed {
		span.SetStatus(codes.Error, failureMessage(res))
	}

	if res.Dir != "" {
		if err := writeJSON(filepath.Join(res.Dir, resultFile), res); err != nil {
			logger.Warn("write result failed", zap.Error(err))
		}
	}
	fields := []zap.Field{
		zap.String("status", string(res.Status)),
		zap.Duration("elapsed", res.Elapsed),
		zap.Int("succeeded", res.Count(step.StatusSucceeded)),
		zap.Int("skipped", res.Count(step.StatusSkipped)),
	}
	if res.Status == step.StatusFailed {
		logger.Error("scenario failed", append(fields, zap.String("error", failureMessage(res)))...)
	} else {
		logger.Info("scenario succeeded", fields...)
	}
	return res
}

// runSteps executes steps in order and returns the first failed outcome, after which
// nothing else runs.
func (r *Runner) runSteps(ctx context.Context, rn *run, steps []step.Step, prefix string) *step.Outcome {
	for i, st := range steps {
		path := fmt.Sprintf("%s[%d]", prefix, i)

		if st.When != "" {
			ok, err := step.EvalWhen(st.When, rn.sc.env())
			if err != nil {
				o := r.record(ctx, rn, step.Outcome{
					Path:   path,
					Step:   st,
					Status: step.StatusFailed,
					Err:    failure.Annotate(err, failure.KindInvalidStep, st.String(), st.Descriptor(), 0),
				})
				return &o
			}
			if !ok {
				r.skip(ctx, rn, st, path, "when condition is false")
				continue
			}
		}

		runIt, reason, err := r.gate.ShouldRun(ctx, st, rn.page)
		if err != nil {
			kind := failure.KindInvalidStep
			if errors.Is(err, failure.ErrSessionClosed) {
				kind = failure.KindSessionClosed
			}
			o := r.record(ctx, rn, step.Outcome{
				Path:   path,
				Step:   st,
				Status: step.StatusFailed,
				Err:    failure.Annotate(err, kind, st.String(), st.Descriptor(), 0),
			})
			return &o
		}
		if !runIt {
			r.skip(ctx, rn, st, path, reason)
			continue
		}

		sctx, span := r.tracer.Start(ctx, "step "+string(st.Kind), trace.WithAttributes(
			AttrStepPath.String(path),
			AttrStepKind.String(string(st.Kind)),
			AttrDescriptor.String(st.Descriptor()),
		))
		o := rn.exec.Execute(sctx, st, rn.page)
		o.Path = path
		if o.Failed() {
			span.RecordError(o.Err)
			span.SetStatus(codes.Error, o.Err.Error())
		}
		span.End()
		o = r.record(ctx, rn, o)
		if o.Failed() {
			return &o
		}
		if failed := r.runSteps(ctx, rn, st.Then, path+".then"); failed != nil {
			return failed
		}
	}
	return nil
}

// skip records st and all of its then descendants as Skipped.
func (r *Runner) skip(ctx context.Context, rn *run, st step.Step, path, reason string) {
	r.record(ctx, rn, step.Outcome{Path: path, Step: st, Status: step.StatusSkipped, Reason: reason})
	for i, child := range st.Then {
		r.skip(ctx, rn, child, fmt.Sprintf("%s.then[%d]", path, i), "parent step skipped")
	}
}

func (r *Runner) record(ctx context.Context, rn *run, o step.Outcome) step.Outcome {
	rn.res.Outcomes = append(rn.res.Outcomes, o)
	r.metrics.recordStep(o)

	fields := []zap.Field{
		zap.String("path", o.Path),
		zap.String("step", o.Step.String()),
		zap.Duration("elapsed", o.Elapsed),
	}
	switch o.Status {
	case step.StatusSucceeded:
		rn.logger.Info("step succeeded", fields...)
	case step.StatusSkipped:
		trace.SpanFromContext(ctx).AddEvent("step skipped", trace.WithAttributes(
			AttrStepPath.String(o.Path),
			attribute.String("reason", o.Reason),
		))
		rn.logger.Info("step skipped", append(fields, zap.String("reason", o.Reason))...)
	case step.StatusFailed:
		fields = append(fields, zap.String("kind", string(failure.KindOf(o.Err))))
		if fe, ok := failure.As(o.Err); ok {
			if fe.Descriptor != "" {
				fields = append(fields, zap.String("descriptor", fe.Descriptor))
			}
			if fe.Actual != "" {
				fields = append(fields, zap.String("actual", fe.Actual))
			}
		}
		rn.logger.Error("step failed", append(fields, zap.Error(o.Err))...)
	}
	return o
}

// captureFailure builds the failure report, takes a screenshot and writes both into
// the run directory. It runs even if ctx is already cancelled.
func (r *Runner) captureFailure(ctx context.Context, rn *run, o step.Outcome) *FailureReport {
	fr := newFailureReport(rn.res, o)
	if rn.res.Dir == "" {
		return fr
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.CaptureTimeout)
	defer cancel()

	if u, err := rn.page.URL(cctx); err == nil {
		fr.URL = u
	}
	if path, err := rn.exec.Capture(cctx, rn.page, failureScreenshot); err != nil {
		fr.ScreenshotErr = err.Error()
		rn.logger.Warn("failure screenshot not captured", zap.Error(err))
	} else {
		fr.Screenshot = path
	}
	if err := writeJSON(filepath.Join(rn.res.Dir, failureReport), fr); err != nil {
		rn.logger.Warn("write failure report failed", zap.Error(err))
	}
	return fr
}

func failureMessage(res *Result) string {
	switch {
	case res.Failure != nil:
		return res.Failure.Message
	case res.Err != nil:
		return res.Err.Error()
	}
	return ""
}
