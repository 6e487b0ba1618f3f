// internal/step/outcome.go
package step

import (
	"encoding/json"
	"time"

	"github.com/cmux-cli/uiverify/internal/failure"
)

// Status is the result of one step.
type Status string

const (
	StatusSucceeded Status = "Succeeded"
	StatusSkipped   Status = "Skipped"
	StatusFailed    Status = "Failed"
)

// Outcome records what happened to one step.
type Outcome struct {
	// Path locates the step in its scenario, e.g. steps[3].then[0].
	Path    string
	Step    Step
	Status  Status
	Err     error
	Elapsed time.Duration
	// Reason explains a skip.
	Reason string
	// Artifact is the file a screenshot step wrote.
	Artifact string
}

// Failed reports whether the step failed.
func (o Outcome) Failed() bool { return o.Status == StatusFailed }

type outcomeJSON struct {
	Path       string        `json:"path,omitempty"`
	Step       string        `json:"step"`
	Kind       Kind          `json:"kind"`
	Descriptor string        `json:"descriptor,omitempty"`
	Optional   bool          `json:"optional,omitempty"`
	Status     Status        `json:"status"`
	ElapsedMs  int64         `json:"elapsed_ms"`
	Reason     string        `json:"reason,omitempty"`
	Artifact   string        `json:"artifact,omitempty"`
	Error      *failure.JSON `json:"error,omitempty"`
}

// MarshalJSON renders the outcome with its error flattened to kind and message.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(outcomeJSON{
		Path:       o.Path,
		Step:       o.Step.String(),
		Kind:       o.Step.Kind,
		Descriptor: o.Step.Descriptor(),
		Optional:   o.Step.Optional,
		Status:     o.Status,
		ElapsedMs:  o.Elapsed.Milliseconds(),
		Reason:     o.Reason,
		Artifact:   o.Artifact,
		Error:      failure.ToJSON(o.Err),
	})
}
