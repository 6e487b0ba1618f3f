// internal/scenario/result.go
package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cmux-cli/uiverify/internal/failure"
	"github.com/cmux-cli/uiverify/internal/step"
)

// State is the runner's lifecycle position for one scenario.
type State string

const (
	StatePending   State = "Pending"
	StateRunning   State = "Running"
	StateCompleted State = "Completed"
)

// Result is the outcome of one scenario run.
type Result struct {
	Scenario string
	Source   string
	RunID    string
	State    State
	// Status is Succeeded or Failed once State is Completed.
	Status   step.Status
	Outcomes []step.Outcome
	// Failure describes the step that stopped the run.
	Failure *FailureReport
	// Err is set when the run failed outside any step, e.g. no session could be opened.
	Err error
	// TeardownErr records a session close failure; it does not change Status.
	TeardownErr error
	StartedAt   time.Time
	Elapsed     time.Duration
	// Dir holds the run's artifacts.
	Dir string
}

// Succeeded reports whether the scenario completed without a failed step.
func (r *Result) Succeeded() bool {
	return r.State == StateCompleted && r.Status == step.StatusSucceeded
}

// Count returns how many outcomes have status s.
func (r *Result) Count(s step.Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

func (r *Result) advance(next State) {
	switch {
	case r.State == StatePending && next == StateRunning,
		r.State == StatePending && next == StateCompleted,
		r.State == StateRunning && next == StateCompleted:
		r.State = next
	default:
		panic(fmt.Sprintf("scenario: invalid transition %s -> %s", r.State, next))
	}
}

type resultJSON struct {
	Scenario    string         `json:"scenario"`
	Source      string         `json:"source,omitempty"`
	RunID       string         `json:"run_id"`
	State       State          `json:"state"`
	Status      step.Status    `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	ElapsedMs   int64          `json:"elapsed_ms"`
	Succeeded   int            `json:"succeeded"`
	Skipped     int            `json:"skipped"`
	Failed      int            `json:"failed"`
	Steps       []step.Outcome `json:"steps"`
	Failure     *FailureReport `json:"failure,omitempty"`
	Error       *failure.JSON  `json:"error,omitempty"`
	TeardownErr string         `json:"teardown_error,omitempty"`
	Dir         string         `json:"dir,omitempty"`
}

// MarshalJSON renders the result as written to result.json.
func (r *Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Scenario:  r.Scenario,
		Source:    r.Source,
		RunID:     r.RunID,
		State:     r.State,
		Status:    r.Status,
		StartedAt: r.StartedAt,
		ElapsedMs: r.Elapsed.Milliseconds(),
		Succeeded: r.Count(step.StatusSucceeded),
		Skipped:   r.Count(step.StatusSkipped),
		Failed:    r.Count(step.StatusFailed),
		Steps:     r.Outcomes,
		Failure:   r.Failure,
		Error:     failure.ToJSON(r.Err),
		Dir:       r.Dir,
	}
	if out.Steps == nil {
		out.Steps = []step.Outcome{}
	}
	if r.TeardownErr != nil {
		out.TeardownErr = r.TeardownErr.Error()
	}
	return json.Marshal(out)
}

// FailureReport is the diagnostic record captured when a scenario fails.
type FailureReport struct {
	Scenario   string       `json:"scenario"`
	RunID      string       `json:"run_id"`
	Step       string       `json:"step"`
	Path       string       `json:"path,omitempty"`
	Descriptor string       `json:"descriptor,omitempty"`
	Kind       failure.Kind `json:"kind"`
	Message    string       `json:"message"`
	// Actual is the last observed value for assertion failures.
	Actual    string `json:"actual,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
	// URL is the page address when the failure was captured.
	URL        string `json:"url,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
	// ScreenshotErr explains a missing screenshot.
	ScreenshotErr string    `json:"screenshot_error,omitempty"`
	CapturedAt    time.Time `json:"captured_at"`
}

func newFailureReport(res *Result, o step.Outcome) *FailureReport {
	fr := &FailureReport{
		Scenario:   res.Scenario,
		RunID:      res.RunID,
		Step:       o.Step.String(),
		Path:       o.Path,
		Descriptor: o.Step.Descriptor(),
		ElapsedMs:  o.Elapsed.Milliseconds(),
		CapturedAt: time.Now().UTC(),
	}
	if fe, ok := failure.As(o.Err); ok {
		fr.Kind = fe.Kind
		fr.Message = fe.Error()
		fr.Actual = fe.Actual
		if fe.Descriptor != "" {
			fr.Descriptor = fe.Descriptor
		}
	} else if o.Err != nil {
		fr.Message = o.Err.Error()
	}
	return fr
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
