// internal/cli/output.go
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cmux-cli/uiverify/internal/browser"
	"github.com/cmux-cli/uiverify/internal/failure"
	"github.com/cmux-cli/uiverify/internal/scenario"
)

// Exit codes
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1 // A scenario failed or the run could not complete
	ExitCodeUsage   = 2 // Invalid command, config or scenario file
)

var lastOutputError error

// UsageError represents a usage/input error (exit code 2)
type UsageError struct {
	Message string
	Err     error
}

func (e *UsageError) Error() string {
	return e.Message
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// NewUsageError creates a new usage error
func NewUsageError(msg string) error {
	return &UsageError{Message: msg}
}

// ScenarioFailedError reports that at least one scenario did not succeed. The
// results have already been printed.
type ScenarioFailedError struct {
	Failed int
	Total  int
}

func (e *ScenarioFailedError) Error() string {
	return fmt.Sprintf("%d of %d scenario(s) failed", e.Failed, e.Total)
}

// OutputResult outputs the result as JSON or formatted text
func OutputResult(data any) error {
	if flagJSON {
		return OutputJSON(data)
	}
	return OutputText(data)
}

// OutputJSON outputs data as JSON
func OutputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// OutputText outputs data as human-readable text
// Each type should implement a TextOutput() string method
func OutputText(data any) error {
	if t, ok := data.(interface{ TextOutput() string }); ok {
		fmt.Println(t.TextOutput())
		return nil
	}
	return OutputJSON(data)
}

// OutputError outputs an error in consistent format. The same error is only
// printed once.
func OutputError(err error) {
	if err == nil {
		return
	}
	if lastOutputError != nil && lastOutputError.Error() == err.Error() {
		return
	}
	lastOutputError = err

	var failed *ScenarioFailedError
	if flagJSON && errors.As(err, &failed) {
		// The run summary already carries the failures.
		return
	}
	if flagJSON {
		_ = OutputJSON(ErrorResponse{
			Error: ErrorDetail{
				Code:    getErrorCode(err),
				Message: err.Error(),
				Details: errorDetails(err),
			},
		})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
	}
}

// ResetErrorOutput resets the error output guard (for testing)
func ResetErrorOutput() {
	lastOutputError = nil
}

// GetExitCode returns the appropriate exit code for an error
func GetExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitCodeUsage
	}
	var verrs *scenario.ValidationErrors
	if errors.As(err, &verrs) {
		return ExitCodeUsage
	}

	// Check for cobra usage errors (unknown command, missing args, etc.)
	if isCobraUsage(err.Error()) {
		return ExitCodeUsage
	}

	return ExitCodeError
}

func isCobraUsage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "unknown command") ||
		strings.Contains(msg, "unknown flag") ||
		strings.Contains(msg, "unknown shorthand flag") ||
		strings.Contains(msg, "requires at least") ||
		strings.Contains(msg, "accepts at most") ||
		strings.Contains(msg, "accepts ") ||
		strings.Contains(msg, "invalid argument")
}

// ErrorResponse is the standard error format
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Common error codes
const (
	ErrCodeUsage              = "USAGE_ERROR"
	ErrCodeInvalidScenario    = "INVALID_SCENARIO"
	ErrCodeScenarioFailed     = "SCENARIO_FAILED"
	ErrCodeBrowserUnavailable = "BROWSER_UNAVAILABLE"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

func getErrorCode(err error) string {
	var verrs *scenario.ValidationErrors
	if errors.As(err, &verrs) {
		return ErrCodeInvalidScenario
	}
	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ErrCodeUsage
	}
	var failed *ScenarioFailedError
	if errors.As(err, &failed) {
		return ErrCodeScenarioFailed
	}
	if errors.Is(err, browser.ErrUnavailable) || errors.Is(err, failure.ErrSessionClosed) {
		return ErrCodeBrowserUnavailable
	}
	if isCobraUsage(err.Error()) {
		return ErrCodeUsage
	}
	if strings.Contains(strings.ToLower(err.Error()), "deadline exceeded") {
		return ErrCodeTimeout
	}
	return ErrCodeInternal
}

func errorDetails(err error) map[string]any {
	var verrs *scenario.ValidationErrors
	if errors.As(err, &verrs) {
		return map[string]any{"source": verrs.Source, "errors": verrs.Errors}
	}
	var failed *ScenarioFailedError
	if errors.As(err, &failed) {
		return map[string]any{"failed": failed.Failed, "total": failed.Total}
	}
	if j := failure.ToJSON(err); j != nil && j.Kind != "" {
		return map[string]any{"kind": j.Kind}
	}
	return nil
}
