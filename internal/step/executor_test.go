// internal/step/executor_test.go
package step

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmux-cli/uiverify/internal/browser"
	bt "github.com/cmux-cli/uiverify/internal/browser/browsertest"
	"github.com/cmux-cli/uiverify/internal/failure"
	"github.com/cmux-cli/uiverify/internal/locator"
	"github.com/cmux-cli/uiverify/internal/wait"
)

const base = "http://app.test"

var testSpec = wait.Spec{Timeout: 300 * time.Millisecond, PollInterval: 10 * time.Millisecond}

func newExecutor(t *testing.T) (*Executor, *browser.Metrics) {
	t.Helper()
	metrics := browser.NewMetrics()
	return NewExecutor(Options{
		Wait:        testSpec,
		SettleQuiet: 20 * time.Millisecond,
		BaseURL:     base,
		OutputDir:   t.TempDir(),
	}, metrics, nil), metrics
}

// loginPage serves a login form that redirects to the dashboard shortly after a
// correct submit.
func loginPage() *bt.Page {
	p := bt.NewPage()
	p.Route(base+"/Account/Login", func(p *bt.Page) {
		email := bt.Input("Email")
		password := bt.Input("Password")
		p.SetDOM(bt.E("body",
			bt.E("form", email, password,
				bt.Button("Log in").OnClick(func(p *bt.Page) {
					if email.CurrentValue() == "admin@example.com" && password.CurrentValue() == "Admin123!" {
						p.After(30*time.Millisecond, func(p *bt.Page) { p.Redirect(base + "/") })
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

func requireKind(t *testing.T, out Outcome, kind failure.Kind) *failure.Error {
	t.Helper()
	require.Equal(t, StatusFailed, out.Status, "step should fail")
	fe, ok := failure.As(out.Err)
	require.True(t, ok, "outcome error should be a *failure.Error, got %T", out.Err)
	assert.Equal(t, kind, fe.Kind, fe.Error())
	return fe
}

func TestExecuteLoginFlow(t *testing.T) {
	e, metrics := newExecutor(t)
	page := loginPage()
	ctx := context.Background()

	steps := []Step{
		Navigate("/Account/Login"),
		Fill(locator.Label("Email"), "admin@example.com"),
		Fill(locator.Label("Password"), "Admin123!"),
		Click(locator.Role("button", "Log in")),
		AssertURL("/"),
		AssertVisible(locator.Role("heading", "Dashboard")),
	}
	for _, st := range steps {
		out := e.Execute(ctx, st, page)
		require.Equal(t, StatusSucceeded, out.Status, "%s: %v", st, out.Err)
	}

	assert.Equal(t, []string{base + "/Account/Login"}, page.Navigations())
	actions := page.Actions()
	require.Len(t, actions, 3)
	assert.Equal(t, bt.Action{Kind: "fill", Tag: "input", Value: "admin@example.com"}, actions[0])
	assert.Equal(t, "click", actions[2].Kind)
	assert.Equal(t, "Log in", actions[2].Name)

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.NavigateCount)
	assert.Equal(t, int64(3), snap.ActionCount)
	assert.Zero(t, snap.ActionFailures)
}

func TestExecuteWrongPasswordTimesOutOnURL(t *testing.T) {
	e, _ := newExecutor(t)
	page := loginPage()
	ctx := context.Background()

	for _, st := range []Step{
		Navigate("/Account/Login"),
		Fill(locator.Label("Email"), "admin@example.com"),
		Fill(locator.Label("Password"), "wrong"),
		Click(locator.Role("button", "Log in")),
	} {
		require.Equal(t, StatusSucceeded, e.Execute(ctx, st, page).Status)
	}

	out := e.Execute(ctx, AssertURL("/"), page)
	fe := requireKind(t, out, failure.KindAssertionTimeout)
	assert.Equal(t, base+"/Account/Login", fe.Actual)
	assert.GreaterOrEqual(t, out.Elapsed, testSpec.Timeout)
}

func TestClickWaitsForElement(t *testing.T) {
	e, _ := newExecutor(t)
	page := bt.NewPage()
	page.SetDOM(bt.E("body"))
	clicked := false
	page.After(80*time.Millisecond, func(p *bt.Page) {
		p.SetDOM(bt.E("body", bt.Button("Save").OnClick(func(*bt.Page) { clicked = true })))
	})

	out := e.Execute(context.Background(), Click(locator.Role("button", "Save")), page)
	require.Equal(t, StatusSucceeded, out.Status, "%v", out.Err)
	assert.True(t, clicked)
	assert.GreaterOrEqual(t, out.Elapsed, 80*time.Millisecond)
}

func TestClickWaitsForActionability(t *testing.T) {
	e, _ := newExecutor(t)
	page := bt.NewPage()
	page.SetDOM(bt.E("body", bt.Button("Save").Disabled()))
	page.After(50*time.Millisecond, func(p *bt.Page) {
		p.SetDOM(bt.E("body", bt.Button("Save")))
	})

	out := e.Execute(context.Background(), Click(locator.Role("button", "Save")), page)
	require.Equal(t, StatusSucceeded, out.Status, "%v", out.Err)
	assert.GreaterOrEqual(t, out.Elapsed, 50*time.Millisecond)
}

func TestClickFailures(t *testing.T) {
	tests := []struct {
		name   string
		dom    *bt.El
		target locator.Descriptor
		kind   failure.Kind
		fast   bool
	}{
		{
			name:   "missing element",
			dom:    bt.E("body"),
			target: locator.Role("button", "Save"),
			kind:   failure.KindLocatorNotFound,
		},
		{
			name:   "disabled element",
			dom:    bt.E("body", bt.Button("Save").Disabled()),
			target: locator.Role("button", "Save"),
			kind:   failure.KindNotInteractable,
		},
		{
			name:   "obscured element",
			dom:    bt.E("body", bt.Button("Save").Obscured()),
			target: locator.Role("button", "Save"),
			kind:   failure.KindNotInteractable,
		},
		{
			name:   "ambiguous element",
			dom:    bt.E("body", bt.Button("Complete"), bt.Button("Complete")),
			target: locator.Role("button", "Complete"),
			kind:   failure.KindAmbiguousLocator,
			fast:   true,
		},
		{
			name:   "invalid descriptor",
			dom:    bt.E("body"),
			target: locator.Descriptor{Kind: "xpath", Value: "//button"},
			kind:   failure.KindInvalidStep,
			fast:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newExecutor(t)
			page := bt.NewPage()
			page.SetDOM(tt.dom)

			out := e.Execute(context.Background(), Click(tt.target), page)
			fe := requireKind(t, out, tt.kind)
			assert.NotEmpty(t, fe.Step)
			if tt.fast {
				assert.Less(t, out.Elapsed, testSpec.Timeout)
			} else {
				assert.GreaterOrEqual(t, out.Elapsed, testSpec.Timeout)
				assert.Equal(t, tt.target.String(), fe.Descriptor)
			}
			assert.Empty(t, page.Actions())
		})
	}
}

func TestFillNonEditable(t *testing.T) {
	e, _ := newExecutor(t)
	page := bt.NewPage()
	page.SetDOM(bt.E("body", bt.E("div").Label("Notes").Text("read only")))

	out := e.Execute(context.Background(), Fill(locator.Label("Notes"), "x"), page)
	fe := requireKind(t, out, failure.KindNotInteractable)
	assert.Equal(t, "not editable", fe.Actual)
}

func TestFillWithinScope(t *testing.T) {
	e, _ := newExecutor(t)
	page := bt.NewPage()
	dialogQty := bt.Input("Quantity")
	page.SetDOM(bt.E("body",
		bt.Input("Quantity"),
		bt.E("div", dialogQty).Role("dialog"),
	))

	target := locator.Label("Quantity").Within(locator.Role("dialog", ""))
	out := e.Execute(context.Background(), Fill(target, "1"), page)
	require.Equal(t, StatusSucceeded, out.Status, "%v", out.Err)
	assert.Equal(t, "1", dialogQty.CurrentValue())
}

func TestAssertTextBecomesTrueWithinBound(t *testing.T) {
	e, _ := newExecutor(t)
	page := bt.NewPage()
	list := bt.E("ul").Role("list")
	page.SetDOM(bt.E("body", list))
	page.After(100*time.Millisecond, func(p *bt.Page) {
		p.SetDOM(bt.E("body", bt.E("ul", bt.E("li").Role("listitem").Matches(".message-item").Text("Hello   there")).Role("list")))
	})

	target := locator.CSS(".message-item").Last()
	out := e.Execute(context.Background(), AssertText(target, "Hello there"), page)
	require.Equal(t, StatusSucceeded, out.Status, "%v", out.Err)
	assert.GreaterOrEqual(t, out.Elapsed, 100*time.Millisecond)
	assert.LessOrEqual(t, out.Elapsed, testSpec.Timeout+testSpec.PollInterval)
}

func TestAssertTextTimeoutCarriesLastObserved(t *testing.T) {
	e, _ := newExecutor(t)
	page := bt.NewPage()
	page.SetDOM(bt.E("body", bt.E("div").Matches(".conversation-view").Text("Conversation with admin")))

	out := e.Execute(context.Background(), AssertText(locator.CSS(".conversation-view"), "user1"), page)
	fe := requireKind(t, out, failure.KindAssertionTimeout)
	assert.Equal(t, "Conversation with admin", fe.Actual)
	assert.GreaterOrEqual(t, fe.Elapsed, testSpec.Timeout)
}

func TestAssertVisibleMissingReportsNotFound(t *testing.T) {
	e, _ := newExecutor(t)
	page := bt.NewPage()
	page.SetDOM(bt.E("body"))

	out := e.Execute(context.Background(), AssertVisible(locator.Text("Customers").Exactly()), page)
	fe := requireKind(t, out, failure.KindAssertionTimeout)
	assert.Equal(t, notFound, fe.Actual)
}

func TestAssertAttribute(t *testing.T) {
	e, _ := newExecutor(t)
	page := bt.NewPage()
	tab := bt.E("button").Role("tab").Name("Pickup Management").Attr("aria-selected", "false")
	tab.OnClick(func(p *bt.Page) { tab.Attr("aria-selected", "true") })
	page.SetDOM(bt.E("body", bt.E("div", tab).Role("tablist")))

	target := locator.Role("tab", "Pickup Management")
	require.Equal(t, StatusSucceeded, e.Execute(context.Background(), Click(target), page).Status)
	out := e.Execute(context.Background(), AssertAttribute(target, "aria-selected", "true"), page)
	require.Equal(t, StatusSucceeded, out.Status, "%v", out.Err)

	out = e.Execute(context.Background(), AssertAttribute(target, "data-state", "open").WithTimeout(50*time.Millisecond), page)
	fe := requireKind(t, out, failure.KindAssertionTimeout)
	assert.Equal(t, "<no data-state attribute>", fe.Actual)
	assert.Less(t, out.Elapsed, testSpec.Timeout)
}

func TestAssertURLPattern(t *testing.T) {
	e, _ := newExecutor(t)
	page := loginPage()
	require.Equal(t, StatusSucceeded, e.Execute(context.Background(), Navigate("/Account/Login"), page).Status)

	st := AssertURL(`/Account/Log(in|out)$`)
	st.Pattern = true
	out := e.Execute(context.Background(), st, page)
	assert.Equal(t, StatusSucceeded, out.Status, "%v", out.Err)
}

func TestNavigateFailures(t *testing.T) {
	e, _ := newExecutor(t)
	page := bt.NewPage()

	out := e.Execute(context.Background(), Navigate("/nowhere"), page)
	fe := requireKind(t, out, failure.KindNavigationError)
	assert.Contains(t, fe.Error(), base+"/nowhere")

	page.Close()
	out = e.Execute(context.Background(), Navigate("/nowhere"), page)
	requireKind(t, out, failure.KindSessionClosed)
}

func TestNavigateWaitsForSettle(t *testing.T) {
	e, _ := newExecutor(t)
	page := loginPage()
	page.LoadTime = 100 * time.Millisecond

	out := e.Execute(context.Background(), Navigate(base+"/Account/Login"), page)
	require.Equal(t, StatusSucceeded, out.Status, "%v", out.Err)
	assert.GreaterOrEqual(t, out.Elapsed, 100*time.Millisecond)

	page.LoadTime = time.Hour
	out = e.Execute(context.Background(), Navigate(base+"/Account/Login"), page)
	requireKind(t, out, failure.KindNavigationError)
}

func TestClickThenSettle(t *testing.T) {
	e, _ := newExecutor(t)
	page := bt.NewPage()
	page.SetDOM(bt.E("body", bt.Button("Initiate Process").OnClick(func(p *bt.Page) {
		p.Busy(60 * time.Millisecond)
	})))

	st := Click(locator.Role("button", "Initiate Process"))
	st.Settle = true
	out := e.Execute(context.Background(), st, page)
	require.Equal(t, StatusSucceeded, out.Status, "%v", out.Err)
	assert.GreaterOrEqual(t, out.Elapsed, 60*time.Millisecond)
}

func TestScreenshot(t *testing.T) {
	e, metrics := newExecutor(t)
	page := bt.NewPage()

	out := e.Execute(context.Background(), Screenshot("shots/01_open.png"), page)
	require.Equal(t, StatusSucceeded, out.Status, "%v", out.Err)
	assert.Equal(t, filepath.Join(e.Options().OutputDir, "shots/01_open.png"), out.Artifact)
	data, err := os.ReadFile(out.Artifact)
	require.NoError(t, err)
	assert.Equal(t, bt.PNG, data)
	assert.Equal(t, int64(1), metrics.Snapshot().Screenshots)

	page.Close()
	out = e.Execute(context.Background(), Screenshot("shots/02.png"), page)
	requireKind(t, out, failure.KindSessionClosed)
}

func TestExecuteInvalidStep(t *testing.T) {
	e, _ := newExecutor(t)
	out := e.Execute(context.Background(), Step{Kind: KindFill}, bt.NewPage())
	fe := requireKind(t, out, failure.KindInvalidStep)
	assert.Contains(t, fe.Error(), "target is required")
}

func TestAbsURL(t *testing.T) {
	e, _ := newExecutor(t)
	assert.Equal(t, base+"/Account/Login", e.AbsURL("/Account/Login"))
	assert.Equal(t, "http://other.test/x", e.AbsURL("http://other.test/x"))
	assert.Equal(t, base+"/", e.AbsURL("/"))
}
