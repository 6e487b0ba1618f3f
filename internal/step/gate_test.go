// internal/step/gate_test.go
package step

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bt "github.com/cmux-cli/uiverify/internal/browser/browsertest"
	"github.com/cmux-cli/uiverify/internal/failure"
	"github.com/cmux-cli/uiverify/internal/locator"
)

func TestGateShouldRun(t *testing.T) {
	startPick := locator.Role("button", "Start Pick")

	tests := []struct {
		name   string
		dom    *bt.El
		step   Step
		run    bool
		reason string
	}{
		{
			name: "required steps always run",
			dom:  bt.E("body"),
			step: Click(startPick),
			run:  true,
		},
		{
			name:   "absent target skips",
			dom:    bt.E("body", bt.Button("Complete")),
			step:   Click(startPick.First()).Maybe(),
			run:    false,
			reason: "target not present",
		},
		{
			name:   "invisible target skips",
			dom:    bt.E("body", bt.Button("Start Pick").Invisible()),
			step:   Click(startPick.First()).Maybe(),
			run:    false,
			reason: "target not visible",
		},
		{
			name: "visible target runs",
			dom:  bt.E("body", bt.Button("Start Pick"), bt.Button("Start Pick")),
			step: Click(startPick.First()).Maybe(),
			run:  true,
		},
		{
			name: "disabled but visible target runs",
			dom:  bt.E("body", bt.Button("Start Pick").Disabled()),
			step: Click(startPick).Maybe(),
			run:  true,
		},
		{
			name: "ambiguous target runs so the executor reports it",
			dom:  bt.E("body", bt.Button("Start Pick"), bt.Button("Start Pick")),
			step: Click(startPick).Maybe(),
			run:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := bt.NewPage()
			page.SetDOM(tt.dom)
			run, reason, err := NewGate(0, nil).ShouldRun(context.Background(), tt.step, page)
			require.NoError(t, err)
			assert.Equal(t, tt.run, run)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestGateDoesNotWait(t *testing.T) {
	page := bt.NewPage()
	page.SetDOM(bt.E("body"))
	page.After(30*time.Millisecond, func(p *bt.Page) {
		p.SetDOM(bt.E("body", bt.Button("Start Pick")))
	})

	start := time.Now()
	run, _, err := NewGate(0, nil).ShouldRun(context.Background(), Click(locator.Role("button", "Start Pick")).Maybe(), page)
	require.NoError(t, err)
	assert.False(t, run)
	assert.Less(t, time.Since(start), 30*time.Millisecond)
}

func TestGateErrors(t *testing.T) {
	page := bt.NewPage()
	page.SetDOM(bt.E("body"))
	page.Close()

	_, _, err := NewGate(0, nil).ShouldRun(context.Background(), Click(locator.Role("button", "x")).Maybe(), page)
	assert.ErrorIs(t, err, failure.ErrSessionClosed)

	page = bt.NewPage()
	bad := Click(locator.Descriptor{Kind: locator.KindComposite}).Maybe()
	_, _, err = NewGate(0, nil).ShouldRun(context.Background(), bad, page)
	assert.ErrorIs(t, err, failure.ErrInvalidStep)
}

func TestGateBoundsUnresponsivePage(t *testing.T) {
	page := bt.NewPage()
	page.SetDOM(bt.E("body", bt.Button("Start Pick")))
	page.Hung = true

	start := time.Now()
	run, _, err := NewGate(50*time.Millisecond, nil).ShouldRun(context.Background(), Click(locator.Role("button", "Start Pick")).Maybe(), page)
	require.Error(t, err)
	assert.False(t, run)
	assert.ErrorIs(t, err, failure.ErrNotInteractable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	// timeout_ms on the step wins over the gate default
	start = time.Now()
	_, _, err = NewGate(time.Minute, nil).ShouldRun(context.Background(), Click(locator.Role("button", "Start Pick")).Maybe().WithTimeout(30*time.Millisecond), page)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestEvalWhen(t *testing.T) {
	env := map[string]any{"env": "staging", "retries": 2}

	ok, err := EvalWhen(`env == "staging" && retries > 1`, env)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvalWhen("", env)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = EvalWhen(`missing == "x"`, env)
	assert.Error(t, err)

	_, err = EvalWhen(`env`, env)
	assert.Error(t, err, "non-bool expressions are rejected")
}
