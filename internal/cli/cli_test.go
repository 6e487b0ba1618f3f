// internal/cli/cli_test.go
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cmux-cli/uiverify/internal/browser"
	bt "github.com/cmux-cli/uiverify/internal/browser/browsertest"
	"github.com/cmux-cli/uiverify/internal/config"
	"github.com/cmux-cli/uiverify/internal/scenario"
)

const base = "http://app.test"

const loginYAML = `name: Login
steps:
  - kind: navigate
    url: ${baseUrl}/Account/Login
  - kind: fill
    target: {kind: label, value: Email}
    value: ${email}
  - kind: fill
    target: {kind: label, value: Password}
    value: ${password}
  - kind: click
    target: {kind: role, value: button, name: Log in}
  - kind: assert_url
    url: /
`

const fastConfig = `target:
  base_url: http://app.test
wait:
  timeout_ms: 300
  poll_interval_ms: 10
  settle_quiet_ms: 20
`

const unknownFieldYAML = `name: Broken
steps:
  - kind: navigate
    url: /
    colour: red
`

// resetFlags restores every flag to its default so commands can run repeatedly.
func resetFlags() {
	cmds := append([]*cobra.Command{rootCmd}, rootCmd.Commands()...)
	for _, c := range cmds {
		for _, fs := range []*pflag.FlagSet{c.Flags(), c.PersistentFlags()} {
			fs.VisitAll(func(f *pflag.Flag) {
				_ = f.Value.Set(f.DefValue)
				f.Changed = false
			})
		}
	}
}

func setup(t *testing.T) string {
	t.Helper()
	t.Setenv("UIVERIFY_HOME", t.TempDir())
	for _, name := range []string{"UIVERIFY_BASE_URL", "UIVERIFY_TIMEOUT_MS", "UIVERIFY_POLL_INTERVAL_MS", "UIVERIFY_HEADLESS"} {
		t.Setenv(name, "")
	}
	t.Setenv("UIVERIFY_EMAIL", "admin@example.com")
	t.Setenv("UIVERIFY_PASSWORD", "Admin123!")
	t.Cleanup(func() {
		resetFlags()
		ResetErrorOutput()
	})
	return t.TempDir()
}

func execute(args ...string) (string, error) {
	resetFlags()
	ResetErrorOutput()
	rootCmd.SetArgs(args)
	var err error
	out := captureStdout(func() { err = rootCmd.Execute() })
	return out, err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func loginApp() *bt.Page {
	p := bt.NewPage()
	p.Route(base+"/Account/Login", func(p *bt.Page) {
		email := bt.Input("Email")
		password := bt.Input("Password")
		p.SetDOM(bt.E("body",
			bt.E("form", email, password,
				bt.Button("Log in").OnClick(func(p *bt.Page) {
					if email.CurrentValue() == "admin@example.com" && password.CurrentValue() == "Admin123!" {
						p.Redirect(base + "/")
					}
				}),
			),
		))
	})
	p.Route(base+"/", func(p *bt.Page) {
		p.SetDOM(bt.E("body", bt.E("h1").Role("heading").Name("Dashboard").Text("Dashboard")))
	})
	return p
}

func useRuntime(t *testing.T, rt browser.Runtime, err error) {
	t.Helper()
	old := newRuntime
	newRuntime = func(context.Context, *config.Config, *zap.Logger) (browser.Runtime, error) {
		return rt, err
	}
	t.Cleanup(func() { newRuntime = old })
}

type runOutput struct {
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Results   []map[string]any `json:"results"`
}

func TestSetVersionInfo(t *testing.T) {
	SetVersionInfo("1.0.0", "abc123", "2024-01-01T00:00:00Z")
	t.Cleanup(func() { SetVersionInfo("dev", "unknown", "unknown") })

	assert.Equal(t, "1.0.0", GetVersion())
	assert.Equal(t, "abc123", commit)
	assert.Equal(t, "2024-01-01T00:00:00Z", buildTime)
}

func TestVersionCommand(t *testing.T) {
	setup(t)
	SetVersionInfo("2.0.0", "def456", "2025-01-01T00:00:00Z")
	t.Cleanup(func() { SetVersionInfo("dev", "unknown", "unknown") })

	out, err := execute("version", "--json")
	require.NoError(t, err)

	var info VersionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "2.0.0", info.Version)
	assert.Equal(t, "def456", info.Commit)
	assert.Contains(t, info.TextOutput(), "uiverify version 2.0.0")
}

func TestRunCommandSucceeds(t *testing.T) {
	dir := setup(t)
	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.Mkdir(scenarios, 0o755))
	writeFile(t, scenarios, "login.yaml", loginYAML)
	rt := &bt.Runtime{NewPage: loginApp}
	useRuntime(t, rt, nil)

	artifacts := filepath.Join(dir, "artifacts")
	metricsFile := filepath.Join(dir, "metrics.prom")
	traceFile := filepath.Join(dir, "trace.json")
	out, err := execute("run", scenarios, "--json",
		"--config", writeFile(t, dir, "config.yaml", fastConfig),
		"--timeout", "2s",
		"--output", artifacts,
		"--metrics-file", metricsFile,
		"--trace-file", traceFile,
	)
	require.NoError(t, err, out)

	var res runOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Succeeded)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "Login", res.Results[0]["scenario"])
	assert.Equal(t, "Succeeded", res.Results[0]["status"])
	assert.NotContains(t, out, "Admin123!")

	results, err := filepath.Glob(filepath.Join(artifacts, "login", "*", "result.json"))
	require.NoError(t, err)
	assert.Len(t, results, 1)

	metrics, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `uiverify_scenarios_total{status="Succeeded"} 1`)
	assert.Contains(t, string(metrics), "uiverify_browser_sessions_total")

	spans, err := os.ReadFile(traceFile)
	require.NoError(t, err)
	assert.Contains(t, string(spans), "scenario Login")

	assert.True(t, rt.Closed(), "browser is shut down after the run")
	require.Len(t, rt.Sessions(), 1)
	assert.Equal(t, 1, rt.Sessions()[0].Closes())
}

func TestRunCommandScenarioFails(t *testing.T) {
	dir := setup(t)
	t.Setenv("UIVERIFY_PASSWORD", "wrong")
	file := writeFile(t, dir, "login.yaml", loginYAML)
	useRuntime(t, &bt.Runtime{NewPage: loginApp}, nil)

	artifacts := filepath.Join(dir, "artifacts")
	out, err := execute("run", file, "--json",
		"--config", writeFile(t, dir, "config.yaml", fastConfig),
		"--output", artifacts,
	)
	require.Error(t, err)
	var failed *ScenarioFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, ExitCodeError, GetExitCode(err))

	var res runOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 1, res.Failed)
	fr, ok := res.Results[0]["failure"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "AssertionTimeout", fr["kind"])
	assert.Equal(t, "steps[4]", fr["path"])

	shots, err := filepath.Glob(filepath.Join(artifacts, "login", "*", "failure.png"))
	require.NoError(t, err)
	assert.Len(t, shots, 1)
}

func TestRunCommandBrowserUnavailable(t *testing.T) {
	dir := setup(t)
	file := writeFile(t, dir, "login.yaml", loginYAML)
	useRuntime(t, nil, fmt.Errorf("%w: chrome not found", browser.ErrUnavailable))

	_, err := execute("run", file, "--json", "--output", filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.Equal(t, ExitCodeError, GetExitCode(err))
	assert.Equal(t, ErrCodeBrowserUnavailable, getErrorCode(err))
}

func TestRunCommandUsageErrors(t *testing.T) {
	dir := setup(t)
	file := writeFile(t, dir, "login.yaml", loginYAML)
	bad := writeFile(t, dir, "bad.yaml", unknownFieldYAML)
	useRuntime(t, &bt.Runtime{NewPage: loginApp}, nil)

	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{"run", filepath.Join(dir, "nope.yaml")}},
		{"invalid scenario", []string{"run", bad}},
		{"bad config", []string{"run", file, "--parallel", "0"}},
		{"bad base url", []string{"run", file, "--base-url", "app.test"}},
		{"missing config file", []string{"run", file, "--config", filepath.Join(dir, "missing.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(append(tt.args, "--json")...)
			require.Error(t, err)
			assert.Equal(t, ExitCodeUsage, GetExitCode(err), err.Error())
		})
	}
}

func TestValidateCommand(t *testing.T) {
	dir := setup(t)
	writeFile(t, dir, "a_login.yaml", loginYAML)
	writeFile(t, dir, "b_broken.yaml", unknownFieldYAML)

	out, err := execute("validate", dir, "--json")
	require.Error(t, err)
	assert.Equal(t, ExitCodeUsage, GetExitCode(err))

	var res ValidateResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Files, 2)
	assert.True(t, res.Files[0].Valid)
	assert.Equal(t, "Login", res.Files[0].Scenario)
	assert.Equal(t, 5, res.Files[0].Steps)
	assert.False(t, res.Files[1].Valid)
	require.NotEmpty(t, res.Files[1].Errors)
	assert.Equal(t, scenario.PhaseStructural, res.Files[1].Errors[0].Phase)
	assert.Equal(t, 1, res.Invalid)

	text := res.TextOutput()
	assert.Contains(t, text, "invalid  "+filepath.Join(dir, "b_broken.yaml"))
	assert.Contains(t, text, "2 file(s), 1 invalid")
}

func TestListCommand(t *testing.T) {
	dir := setup(t)
	writeFile(t, dir, "login.yaml", loginYAML)

	out, err := execute("list", dir, "--json")
	require.NoError(t, err)

	var res ListResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Scenarios, 1)
	assert.Equal(t, "Login", res.Scenarios[0].Name)
	assert.Equal(t, 5, res.Scenarios[0].Steps)
	assert.Contains(t, res.TextOutput(), "Login")
}

func TestSchemaCommand(t *testing.T) {
	setup(t)
	out, err := execute("schema")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "uiverify scenario", doc["title"])
}

func TestUnknownCommand(t *testing.T) {
	setup(t)
	_, err := execute("frobnicate")
	require.Error(t, err)
	assert.Equal(t, ExitCodeUsage, GetExitCode(err))
}

func TestRunSummaryText(t *testing.T) {
	s := RunSummary{Total: 2, Succeeded: 1, Failed: 1, Results: []*scenario.Result{
		{Scenario: "Login", State: scenario.StateCompleted, Status: "Succeeded", Elapsed: 1200 * time.Millisecond},
		{Scenario: "Chat", State: scenario.StateCompleted, Status: "Failed", Failure: &scenario.FailureReport{
			Path: "steps[2]", Message: "LocatorNotFound: no element", Screenshot: "out/chat/r1/failure.png",
		}},
	}}
	text := s.TextOutput()
	lines := strings.Split(text, "\n")
	assert.Equal(t, "PASS  Login  (0 succeeded, 0 skipped) 1.2s", lines[0])
	assert.Equal(t, "FAIL  Chat  (0 succeeded, 0 skipped) 0s", lines[1])
	assert.Contains(t, text, "steps[2]: LocatorNotFound: no element")
	assert.Contains(t, text, "screenshot: out/chat/r1/failure.png")
	assert.True(t, strings.HasSuffix(text, "1 passed, 1 failed"))
}
