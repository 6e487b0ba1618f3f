// internal/browser/cdp/page.go
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/cmux-cli/uiverify/internal/browser"
	"github.com/cmux-cli/uiverify/internal/locator"
	"github.com/cmux-cli/uiverify/internal/wait"
)

// Page drives one Chrome tab inside its own browser context.
type Page struct {
	tabCtx context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	gen    atomic.Uint64
	closed atomic.Bool

	mu         sync.Mutex
	mainFrame  string
	inflight   map[network.RequestID]struct{}
	loading    bool
	lastChange time.Time
}

var _ browser.Page = (*Page)(nil)

func newPage(tabCtx context.Context, cancel context.CancelFunc, logger *zap.Logger) *Page {
	p := &Page{
		tabCtx:     tabCtx,
		cancel:     cancel,
		logger:     logger,
		inflight:   make(map[network.RequestID]struct{}),
		lastChange: time.Now(),
	}
	chromedp.ListenTarget(tabCtx, p.onEvent)
	return p
}

// onEvent tracks requests and frame loads for Activity.
func (p *Page) onEvent(ev any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		p.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(p.inflight, e.RequestID)
	case *network.EventLoadingFailed:
		delete(p.inflight, e.RequestID)
	case *page.EventFrameStartedLoading:
		if !p.isMainFrame(string(e.FrameID)) {
			return
		}
		p.loading = true
	case *page.EventFrameStoppedLoading:
		if !p.isMainFrame(string(e.FrameID)) {
			return
		}
		p.loading = false
	case *page.EventFrameNavigated:
		if e.Frame == nil || e.Frame.ParentID != "" {
			return
		}
		p.mainFrame = string(e.Frame.ID)
		// Requests from the previous document never report completion.
		p.inflight = make(map[network.RequestID]struct{})
	default:
		return
	}
	p.lastChange = time.Now()
}

// isMainFrame reports whether id is the top-level frame. Until the first navigation
// reports it, every frame counts. p.mu must be held.
func (p *Page) isMainFrame(id string) bool {
	return p.mainFrame == "" || p.mainFrame == id
}

// start runs the first actions on the tab. They attach the tab's event loop to
// tabCtx, so ctx only bounds how long we wait.
func (p *Page) start(ctx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(p.tabCtx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

// run executes actions on an attached tab, bounded by ctx.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.closed.Load() {
		return browser.ErrSessionClosed
	}
	rctx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(rctx, actions...)
	if err == nil {
		return nil
	}
	if p.closed.Load() || p.tabCtx.Err() != nil {
		return browser.ErrSessionClosed
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	p.loading = true
	p.lastChange = time.Now()
	p.mu.Unlock()
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		if errors.Is(err, browser.ErrSessionClosed) {
			return err
		}
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var u string
	if err := p.run(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

type snapshotResult struct {
	URL   string         `json:"url"`
	Title string         `json:"title"`
	Nodes []locator.Node `json:"nodes"`
}

func (p *Page) Snapshot(ctx context.Context, selectors []string) (*locator.Snapshot, error) {
	gen := p.gen.Add(1)
	if selectors == nil {
		selectors = []string{}
	}
	sel, err := json.Marshal(selectors)
	if err != nil {
		return nil, err
	}
	var raw string
	expr := fmt.Sprintf("%s(%s, %d)", snapshotJS, sel, gen)
	if err := p.run(ctx, chromedp.Evaluate(expr, &raw)); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	var res snapshotResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &locator.Snapshot{
		Generation: gen,
		URL:        res.URL,
		Title:      res.Title,
		Selectors:  selectors,
		Nodes:      res.Nodes,
	}, nil
}

// call invokes one of the element scripts with JSON-encoded args.
func (p *Page) call(ctx context.Context, script string, args ...any) (string, error) {
	expr := script + "("
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", err
		}
		if i > 0 {
			expr += ", "
		}
		expr += string(b)
	}
	expr += ")"
	var out string
	if err := p.run(ctx, chromedp.Evaluate(expr, &out)); err != nil {
		return "", err
	}
	if out == "stale" {
		return "", browser.ErrStaleRef
	}
	return out, nil
}

func (p *Page) Click(ctx context.Context, ref locator.Ref) error {
	out, err := p.call(ctx, pointJS, ref.Generation, ref.Index)
	if err != nil {
		return err
	}
	var pt struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := json.Unmarshal([]byte(out), &pt); err != nil {
		return fmt.Errorf("click: decode element position: %w", err)
	}
	if err := p.run(ctx, chromedp.MouseClickXY(pt.X, pt.Y)); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	p.touch()
	return nil
}

func (p *Page) Fill(ctx context.Context, ref locator.Ref, value string) error {
	out, err := p.call(ctx, fillJS, ref.Generation, ref.Index, value)
	if err != nil {
		return err
	}
	if out == "noteditable" {
		return browser.ErrNotEditable
	}
	p.touch()
	return nil
}

func (p *Page) touch() {
	p.mu.Lock()
	p.lastChange = time.Now()
	p.mu.Unlock()
}

func (p *Page) Activity(ctx context.Context) (wait.Activity, error) {
	var raw string
	if err := p.run(ctx, chromedp.Evaluate(activityJS, &raw)); err != nil {
		return wait.Activity{}, err
	}
	var doc struct {
		Ready   string  `json:"ready"`
		QuietMs float64 `json:"quietMs"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return wait.Activity{}, fmt.Errorf("decode activity: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	a := wait.Activity{
		Inflight:   len(p.inflight),
		Loading:    p.loading || doc.Ready != "complete",
		LastChange: p.lastChange,
	}
	if doc.QuietMs >= 0 {
		if mutated := time.Now().Add(-time.Duration(doc.QuietMs * float64(time.Millisecond))); mutated.After(a.LastChange) {
			a.LastChange = mutated
		}
	}
	return a, nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// close cancels the tab context, which closes the tab and its browser context.
func (p *Page) close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := chromedp.Cancel(p.tabCtx)
	p.cancel()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	p.logger.Debug("tab closed", zap.Error(err))
	return err
}
