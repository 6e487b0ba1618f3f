// internal/browser/cdp/runtime.go
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/cmux-cli/uiverify/internal/browser"
)

// Options configures how the Chrome process is obtained.
type Options struct {
	Headless bool
	ExecPath string
	// RemoteURL attaches to an already running Chrome instead of launching one.
	// Either a ws:// debugger URL or the http:// address of the debug endpoint.
	RemoteURL string
	Logger    *zap.Logger
}

// Runtime owns one Chrome process; every session gets its own browser context.
type Runtime struct {
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

var _ browser.Runtime = (*Runtime)(nil)

// New starts or attaches to Chrome. Failure to reach a browser is reported as
// browser.ErrUnavailable.
func New(ctx context.Context, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cdp")

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if opts.RemoteURL != "" {
		wsURL, err := resolveWSURL(ctx, opts.RemoteURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", browser.ErrUnavailable, err)
		}
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), wsURL)
		logger.Info("attaching to chrome", zap.String("ws_url", wsURL))
	} else {
		allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
		)
		if opts.ExecPath != "" {
			allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), allocOpts...)
		logger.Info("launching chrome", zap.Bool("headless", opts.Headless), zap.String("exec_path", opts.ExecPath))
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	rt := &Runtime{
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}

	// The browser lives as long as the context of its first Run, so ctx only
	// bounds how long we wait for it.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()
	var err error
	select {
	case err = <-started:
	case <-ctx.Done():
		allocCancel()
		<-started
		err = ctx.Err()
	}
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("%w: %v", browser.ErrUnavailable, err)
	}
	return rt, nil
}

// NewSession opens a tab in a fresh browser context.
func (r *Runtime) NewSession(ctx context.Context, cfg browser.SessionConfig) (browser.Session, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, browser.ErrUnavailable
	}

	tabCtx, cancel := chromedp.NewContext(r.browserCtx, chromedp.WithNewBrowserContext())
	p := newPage(tabCtx, cancel, r.logger.With(zap.String("session", cfg.SessionID)))

	setup := []chromedp.Action{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(observerJS).Do(ctx)
			return err
		}),
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		setup = append(setup, chromedp.EmulateViewport(int64(cfg.Viewport.Width), int64(cfg.Viewport.Height)))
	}
	if cfg.UserAgent != "" {
		setup = append(setup, emulation.SetUserAgentOverride(cfg.UserAgent))
	}
	if err := p.start(ctx, setup...); err != nil {
		_ = p.close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: open tab: %v", browser.ErrUnavailable, err)
	}

	r.logger.Debug("session opened", zap.String("session", cfg.SessionID))
	return &session{id: cfg.SessionID, page: p}, nil
}

// Close shuts the browser down. Open sessions fail with ErrSessionClosed afterwards.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	err := chromedp.Cancel(r.browserCtx)
	r.browserCancel()
	r.allocCancel()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	r.logger.Info("chrome closed")
	return err
}

type session struct {
	id   string
	page *Page
}

func (s *session) ID() string         { return s.id }
func (s *session) Page() browser.Page { return s.page }
func (s *session) Close() error       { return s.page.close() }

// resolveWSURL turns a debug endpoint address into its websocket debugger URL.
func resolveWSURL(ctx context.Context, remote string) (string, error) {
	if strings.HasPrefix(remote, "ws://") || strings.HasPrefix(remote, "wss://") {
		return remote, nil
	}
	u, err := url.Parse(remote)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid remote url %q", remote)
	}
	u.Path = "/json/version"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: %s", u, resp.Status)
	}

	var data struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", err
	}
	if data.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("empty webSocketDebuggerUrl")
	}
	return data.WebSocketDebuggerURL, nil
}
