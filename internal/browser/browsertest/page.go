// internal/browser/browsertest/page.go
package browsertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cmux-cli/uiverify/internal/browser"
	"github.com/cmux-cli/uiverify/internal/locator"
	"github.com/cmux-cli/uiverify/internal/wait"
)

// PNG is the image every fake screenshot returns.
var PNG = []byte("\x89PNG\r\n\x1a\nfake")

// Action records a click or fill performed on the page.
type Action struct {
	Kind  string // click or fill
	Tag   string
	Name  string
	Value string
}

type timed struct {
	at time.Time
	fn func(p *Page)
}

// Page is a scriptable in-memory browser.Page. Routes render a DOM when navigated
// to, element handlers mutate it, and After schedules changes that become visible
// once their time has passed.
type Page struct {
	mu      sync.Mutex
	url     string
	root    *El
	routes  map[string]func(p *Page)
	pending []timed
	gen     uint64
	els     []*El
	closed  bool

	busyUntil  time.Time
	lastChange time.Time

	actions     []Action
	navigations []string
	screenshots int
	snapshots   int

	// LoadTime keeps the page busy for this long after each navigation.
	LoadTime time.Duration
	// ScreenshotErr, when set, fails every screenshot.
	ScreenshotErr error
	// Hung makes snapshots block until their context ends, like a tab whose main
	// thread is stuck in a dialog.
	Hung bool
}

// NewPage creates an empty page at about:blank.
func NewPage() *Page {
	return &Page{
		url:        "about:blank",
		routes:     make(map[string]func(p *Page)),
		lastChange: time.Now(),
	}
}

var _ browser.Page = (*Page)(nil)

// Route registers the renderer for an absolute URL.
func (p *Page) Route(url string, render func(p *Page)) *Page {
	p.mu.Lock()
	p.routes[url] = render
	p.mu.Unlock()
	return p
}

// SetDOM replaces the document.
func (p *Page) SetDOM(root *El) {
	p.mu.Lock()
	p.root = root
	p.lastChange = time.Now()
	p.mu.Unlock()
}

// Redirect moves the page to url the way client-side routing does.
func (p *Page) Redirect(url string) {
	p.mu.Lock()
	p.url = url
	p.lastChange = time.Now()
	render := p.routes[url]
	p.mu.Unlock()
	if render != nil {
		render(p)
	}
}

// After schedules fn to run once d has elapsed. The change is observed by the next
// call that reads page state.
func (p *Page) After(d time.Duration, fn func(p *Page)) {
	p.mu.Lock()
	p.pending = append(p.pending, timed{at: time.Now().Add(d), fn: fn})
	sort.SliceStable(p.pending, func(i, j int) bool { return p.pending[i].at.Before(p.pending[j].at) })
	p.mu.Unlock()
}

// Busy reports network activity for d.
func (p *Page) Busy(d time.Duration) {
	p.mu.Lock()
	p.busyUntil = time.Now().Add(d)
	p.lastChange = time.Now()
	p.mu.Unlock()
}

// tick runs scheduled changes that are due. It must be called without p.mu held.
func (p *Page) tick() {
	for {
		p.mu.Lock()
		if len(p.pending) == 0 || time.Now().Before(p.pending[0].at) {
			p.mu.Unlock()
			return
		}
		next := p.pending[0]
		p.pending = p.pending[1:]
		p.lastChange = time.Now()
		p.mu.Unlock()
		next.fn(p)
	}
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return browser.ErrSessionClosed
	}
	p.navigations = append(p.navigations, url)
	render, ok := p.routes[url]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("net::ERR_CONNECTION_REFUSED at %s", url)
	}
	p.url = url
	p.root = nil
	p.pending = nil
	p.lastChange = time.Now()
	if p.LoadTime > 0 {
		p.busyUntil = time.Now().Add(p.LoadTime)
	}
	p.mu.Unlock()
	render(p)
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.tick()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", browser.ErrSessionClosed
	}
	return p.url, nil
}

func (p *Page) Snapshot(ctx context.Context, selectors []string) (*locator.Snapshot, error) {
	if p.Hung {
		<-ctx.Done()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.tick()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, browser.ErrSessionClosed
	}
	p.gen++
	p.snapshots++
	nodes, els := flatten(p.root, selectors)
	p.els = els
	return &locator.Snapshot{
		Generation: p.gen,
		URL:        p.url,
		Selectors:  append([]string(nil), selectors...),
		Nodes:      nodes,
	}, nil
}

// element returns the live element behind ref. p.mu must be held.
func (p *Page) element(ref locator.Ref) (*El, error) {
	if p.closed {
		return nil, browser.ErrSessionClosed
	}
	if ref.Generation != p.gen || ref.Index < 0 || ref.Index >= len(p.els) {
		return nil, browser.ErrStaleRef
	}
	el := p.els[ref.Index]
	if !contains(p.root, el) {
		return nil, browser.ErrStaleRef
	}
	return el, nil
}

func (p *Page) Click(ctx context.Context, ref locator.Ref) error {
	p.tick()
	p.mu.Lock()
	el, err := p.element(ref)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.actions = append(p.actions, Action{Kind: "click", Tag: el.node.Tag, Name: el.node.Name})
	p.lastChange = time.Now()
	handler := el.onClick
	p.mu.Unlock()
	if handler != nil {
		handler(p)
	}
	return nil
}

func (p *Page) Fill(ctx context.Context, ref locator.Ref, value string) error {
	p.tick()
	p.mu.Lock()
	el, err := p.element(ref)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if !el.node.Editable {
		p.mu.Unlock()
		return browser.ErrNotEditable
	}
	el.node.Value = value
	p.actions = append(p.actions, Action{Kind: "fill", Tag: el.node.Tag, Name: el.node.Name, Value: value})
	p.lastChange = time.Now()
	handler := el.onFill
	p.mu.Unlock()
	if handler != nil {
		handler(p, value)
	}
	return nil
}

func (p *Page) Activity(ctx context.Context) (wait.Activity, error) {
	p.tick()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return wait.Activity{}, browser.ErrSessionClosed
	}
	a := wait.Activity{LastChange: p.lastChange}
	if time.Now().Before(p.busyUntil) {
		a.Inflight = 1
	}
	return a, nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, browser.ErrSessionClosed
	}
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	p.screenshots++
	return append([]byte(nil), PNG...), nil
}

// Close marks the page closed; every later call fails with ErrSessionClosed.
func (p *Page) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Actions returns the clicks and fills performed so far.
func (p *Page) Actions() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Action(nil), p.actions...)
}

// Navigations returns every URL passed to Navigate.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Screenshots returns the number of screenshots taken.
func (p *Page) Screenshots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.screenshots
}

// Session is a fake browser.Session owning one Page.
type Session struct {
	id     string
	page   *Page
	closes atomic.Int32
	// CloseErr is returned by every Close call.
	CloseErr error
}

var _ browser.Session = (*Session)(nil)

// NewSession wraps page in a session.
func NewSession(id string, page *Page) *Session {
	return &Session{id: id, page: page}
}

func (s *Session) ID() string         { return s.id }
func (s *Session) Page() browser.Page { return s.page }
func (s *Session) FakePage() *Page    { return s.page }
func (s *Session) Closes() int        { return int(s.closes.Load()) }

func (s *Session) Close() error {
	s.closes.Add(1)
	s.page.Close()
	return s.CloseErr
}

// Runtime is a fake browser.Runtime. Each session gets a fresh page from NewPage.
type Runtime struct {
	mu       sync.Mutex
	sessions []*Session
	closed   bool

	// NewPage builds the page for each new session; nil yields an empty page.
	NewPage func() *Page
	// NewSessionErr, when set, fails session creation.
	NewSessionErr error
}

var _ browser.Runtime = (*Runtime)(nil)

func (r *Runtime) NewSession(ctx context.Context, cfg browser.SessionConfig) (browser.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, browser.ErrUnavailable
	}
	if r.NewSessionErr != nil {
		return nil, r.NewSessionErr
	}
	page := NewPage()
	if r.NewPage != nil {
		page = r.NewPage()
	}
	s := NewSession(cfg.SessionID, page)
	r.sessions = append(r.sessions, s)
	return s, nil
}

// Sessions returns every session created so far.
func (r *Runtime) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Session(nil), r.sessions...)
}

// Closed reports whether Close was called.
func (r *Runtime) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Runtime) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}
