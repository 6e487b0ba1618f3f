//go:build integration

// internal/browser/cdp/integration_test.go
package cdp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cmux-cli/uiverify/internal/browser"
	"github.com/cmux-cli/uiverify/internal/locator"
	"github.com/cmux-cli/uiverify/internal/step"
	"github.com/cmux-cli/uiverify/internal/wait"
)

const loginHTML = `<!doctype html>
<html><head><title>Login</title></head><body>
<form id="login" onsubmit="event.preventDefault(); if (document.getElementById('pw').value === 'secret') location.href = '/home';">
  <label for="email">Email</label><input id="email" type="email">
  <label for="pw">Password</label><input id="pw" type="password">
  <button type="submit">Log in</button>
</form>
</body></html>`

const homeHTML = `<!doctype html>
<html><head><title>Home</title></head><body>
<nav><button role="tab">Contacts</button></nav>
<h1>Welcome</h1>
</body></html>`

func fixtureServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/Account/Login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(loginHTML))
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(homeHTML))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newRuntime(t *testing.T) *Runtime {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	rt, err := New(ctx, Options{
		Headless:  true,
		ExecPath:  os.Getenv("UIVERIFY_CHROME"),
		RemoteURL: os.Getenv("UIVERIFY_REMOTE_URL"),
		Logger:    zaptest.NewLogger(t),
	})
	if err != nil {
		t.Skipf("chrome not available: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestLoginFlow(t *testing.T) {
	srv := fixtureServer(t)
	rt := newRuntime(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sess, err := rt.NewSession(ctx, browser.SessionConfig{SessionID: "it", Viewport: browser.Viewport{Width: 1024, Height: 768}})
	require.NoError(t, err)
	defer sess.Close()

	exec := step.NewExecutor(step.Options{
		Wait:        wait.Spec{Timeout: 10 * time.Second, PollInterval: 100 * time.Millisecond},
		SettleQuiet: 200 * time.Millisecond,
		BaseURL:     srv.URL,
	}, nil, zaptest.NewLogger(t))

	steps := []step.Step{
		step.Navigate("/Account/Login"),
		step.Fill(locator.Label("Email"), "ada@example.com"),
		step.Fill(locator.Label("Password"), "secret"),
		step.Click(locator.Role("button", "Log in")),
		step.AssertURL("/home"),
		step.AssertVisible(locator.Role("tab", "Contacts")),
		step.AssertText(locator.Role("heading", ""), "Welcome"),
	}
	for i, s := range steps {
		require.NoError(t, s.Validate(), "step %d", i)
		out := exec.Execute(ctx, s, sess.Page())
		require.Equal(t, step.StatusSucceeded, out.Status, "step %d (%s): %v", i, s, out.Err)
	}

	png, err := sess.Page().Screenshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}

func TestSessionsAreIsolated(t *testing.T) {
	srv := fixtureServer(t)
	rt := newRuntime(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a, err := rt.NewSession(ctx, browser.DefaultSessionConfig())
	require.NoError(t, err)
	b, err := rt.NewSession(ctx, browser.DefaultSessionConfig())
	require.NoError(t, err)

	require.NoError(t, a.Page().Navigate(ctx, srv.URL+"/home"))
	require.NoError(t, b.Page().Navigate(ctx, srv.URL+"/Account/Login"))

	ua, err := a.Page().URL(ctx)
	require.NoError(t, err)
	ub, err := b.Page().URL(ctx)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/home", ua)
	assert.Equal(t, srv.URL+"/Account/Login", ub)

	require.NoError(t, a.Close())
	_, err = a.Page().URL(ctx)
	assert.ErrorIs(t, err, browser.ErrSessionClosed)
	require.NoError(t, b.Close())
}
