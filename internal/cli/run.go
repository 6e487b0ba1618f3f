// internal/cli/run.go
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cmux-cli/uiverify/internal/browser"
	"github.com/cmux-cli/uiverify/internal/browser/cdp"
	"github.com/cmux-cli/uiverify/internal/config"
	"github.com/cmux-cli/uiverify/internal/scenario"
	"github.com/cmux-cli/uiverify/internal/step"
)

// defaultScenarioDir is used when no files are given.
const defaultScenarioDir = "scenarios"

var (
	flagBaseURL      string
	flagTimeout      time.Duration
	flagPollInterval time.Duration
	flagWarmup       time.Duration
	flagHeadless     bool
	flagRemoteURL    string
	flagOutput       string
	flagParallel     int
	flagMetricsFile  string
	flagTraceFile    string
)

// newRuntime opens the browser. Tests replace it with an in-memory runtime.
var newRuntime = func(ctx context.Context, c *config.Config, logger *zap.Logger) (browser.Runtime, error) {
	return cdp.New(ctx, cdp.Options{
		Headless:  c.Browser.Headless,
		ExecPath:  c.Browser.ExecPath,
		RemoteURL: c.Browser.RemoteURL,
		Logger:    logger,
	})
}

var runCmd = &cobra.Command{
	Use:   "run [files or dirs...]",
	Short: "Run scenarios against the target application",
	Long: `Run executes each scenario in a fresh, isolated browser session and reports
which steps succeeded, were skipped, or failed. Without arguments every yaml file
under ./scenarios is run.

Artifacts are written to <output>/<scenario>/<run-id>/: result.json always, and
failure.png plus failure.json when a step fails.

Examples:
  uiverify run
  uiverify run scenarios/login.yaml --base-url http://localhost:5000
  uiverify run scenarios --parallel 4 --metrics-file metrics.prom --json`,
	RunE: runScenarios,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&flagBaseURL, "base-url", "", "Target application base URL")
	f.DurationVar(&flagTimeout, "timeout", 0, "Default per-step timeout (e.g. 30s)")
	f.DurationVar(&flagPollInterval, "poll-interval", 0, "Condition poll interval (e.g. 100ms)")
	f.DurationVar(&flagWarmup, "warmup", 0, "Delay before the first session opens")
	f.BoolVar(&flagHeadless, "headless", true, "Run Chrome headless")
	f.StringVar(&flagRemoteURL, "remote-url", "", "Attach to a running Chrome DevTools endpoint")
	f.StringVarP(&flagOutput, "output", "o", "", "Artifact directory")
	f.IntVarP(&flagParallel, "parallel", "p", 0, "Scenarios to run at once")
	f.StringVar(&flagMetricsFile, "metrics-file", "", "Write prometheus metrics to this file")
	f.StringVar(&flagTraceFile, "trace-file", "", "Write OpenTelemetry spans to this file")
}

// applyRunFlags overrides config values with flags the user set.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("base-url") {
		c.Target.BaseURL = flagBaseURL
	}
	if f.Changed("timeout") {
		c.Wait.TimeoutMs = int(flagTimeout.Milliseconds())
	}
	if f.Changed("poll-interval") {
		c.Wait.PollIntervalMs = int(flagPollInterval.Milliseconds())
	}
	if f.Changed("warmup") {
		c.Warmup.DelayMs = int(flagWarmup.Milliseconds())
	}
	if f.Changed("headless") {
		c.Browser.Headless = flagHeadless
	}
	if f.Changed("remote-url") {
		c.Browser.RemoteURL = flagRemoteURL
	}
	if f.Changed("output") {
		c.Output.Dir = flagOutput
	}
	if f.Changed("parallel") {
		c.Run.Parallel = flagParallel
	}
}

func scenarioPaths(args []string) []string {
	if len(args) == 0 {
		return []string{defaultScenarioDir}
	}
	return args
}

// loadScenarios reports every load problem as a usage error.
func loadScenarios(args []string, opts scenario.LoadOptions) ([]*scenario.Scenario, error) {
	scenarios, err := scenario.LoadAll(scenarioPaths(args), opts)
	if err != nil {
		return nil, &UsageError{Message: err.Error(), Err: err}
	}
	return scenarios, nil
}

func runScenarios(cmd *cobra.Command, args []string) error {
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return &UsageError{Message: err.Error(), Err: err}
	}

	cliCtx, err := NewCLIContext()
	if err != nil {
		return err
	}
	defer cliCtx.Close()
	ctx, logger := cliCtx.Context, cliCtx.Logger

	scenarios, err := loadScenarios(args, LoadOptions())
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	browserMetrics := browser.NewMetrics()
	reg.MustRegister(browserMetrics)
	scenarioMetrics := scenario.NewMetrics(reg)

	var tracer trace.Tracer
	if flagTraceFile != "" {
		f, err := os.Create(flagTraceFile)
		if err != nil {
			return fmt.Errorf("create trace file: %w", err)
		}
		defer f.Close()
		tp, err := scenario.NewTracerProvider(f, version)
		if err != nil {
			return err
		}
		defer func() {
			if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("trace shutdown failed", zap.Error(err))
			}
		}()
		tracer = tp.Tracer()
	}

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	manager := browser.NewManager(rt, browserMetrics, logger)
	defer func() {
		if err := manager.Close(); err != nil {
			logger.Warn("browser shutdown failed", zap.Error(err))
		}
	}()

	opts := []scenario.Option{scenario.WithMetrics(scenarioMetrics)}
	if tracer != nil {
		opts = append(opts, scenario.WithTracer(tracer))
	}
	runner := scenario.NewRunner(manager, scenario.Options{
		Exec: step.Options{
			Wait:        cfg.WaitSpec(),
			SettleQuiet: cfg.SettleQuiet(),
			BaseURL:     cfg.BaseURL(),
			OutputDir:   cfg.Output.Dir,
		},
		Session: browser.SessionConfig{
			Viewport:  cfg.Browser.Window,
			UserAgent: cfg.Browser.UserAgent,
		},
		Warmup:   cfg.WarmupDelay(),
		Parallel: cfg.Run.Parallel,
	}, logger, opts...)

	results, err := runner.RunAll(ctx, scenarios)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("run interrupted during warm-up: %w", err)
		}
		return err
	}

	summary := newRunSummary(results)
	if err := OutputResult(summary); err != nil {
		return err
	}

	if flagMetricsFile != "" {
		if err := scenario.WriteTextfile(flagMetricsFile, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	if summary.Failed > 0 {
		return &ScenarioFailedError{Failed: summary.Failed, Total: summary.Total}
	}
	return nil
}

// RunSummary is the output of the run command.
type RunSummary struct {
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Results   []*scenario.Result `json:"results"`
}

func newRunSummary(results []*scenario.Result) RunSummary {
	s := RunSummary{Total: len(results), Results: results}
	for _, r := range results {
		if r.Succeeded() {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}

func (s RunSummary) TextOutput() string {
	var b strings.Builder
	for _, r := range s.Results {
		mark := "PASS"
		if !r.Succeeded() {
			mark = "FAIL"
		}
		fmt.Fprintf(&b, "%s  %s  (%d succeeded, %d skipped) %s\n", mark, r.Scenario,
			r.Count(step.StatusSucceeded), r.Count(step.StatusSkipped), r.Elapsed.Round(time.Millisecond))
		switch {
		case r.Failure != nil:
			fmt.Fprintf(&b, "      %s: %s\n", r.Failure.Path, r.Failure.Message)
			if r.Failure.Screenshot != "" {
				fmt.Fprintf(&b, "      screenshot: %s\n", r.Failure.Screenshot)
			}
		case r.Err != nil:
			fmt.Fprintf(&b, "      %s\n", r.Err)
		}
		if r.TeardownErr != nil {
			fmt.Fprintf(&b, "      teardown: %s\n", r.TeardownErr)
		}
	}
	fmt.Fprintf(&b, "%d passed, %d failed", s.Succeeded, s.Failed)
	return b.String()
}
