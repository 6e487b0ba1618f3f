// internal/browser/cdp/devtools_test.go
package cdp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// devtools answers enough of the DevTools protocol for chromedp to attach, open
// tabs in new browser contexts and evaluate expressions.
type devtools struct {
	srv *httptest.Server

	mu      sync.Mutex
	open    int
	dialed  int
	next    int
	methods []string
}

func newDevtools(t *testing.T) *devtools {
	d := &devtools{}
	d.srv = httptest.NewServer(http.HandlerFunc(d.serve))
	t.Cleanup(d.srv.Close)
	return d
}

// URL is the browser's websocket debugger URL.
func (d *devtools) URL() string {
	return "ws://" + d.srv.Listener.Addr().String() + "/devtools/browser/test"
}

// Connected reports whether a client holds the websocket open.
func (d *devtools) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open > 0
}

func (d *devtools) Dialed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialed
}

// Called reports whether method was received.
func (d *devtools) Called(method string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.methods {
		if m == method {
			return true
		}
	}
	return false
}

func (d *devtools) serve(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}
	defer conn.Close()

	d.mu.Lock()
	d.open++
	d.dialed++
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.open--
		d.mu.Unlock()
	}()

	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		var msg struct {
			ID        int64           `json:"id"`
			SessionID string          `json:"sessionId"`
			Method    string          `json:"method"`
			Params    json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		reply := map[string]any{"id": msg.ID, "result": d.result(msg.Method, msg.Params)}
		if msg.SessionID != "" {
			reply["sessionId"] = msg.SessionID
		}
		out, err := json.Marshal(reply)
		if err != nil {
			return
		}
		if err := wsutil.WriteServerText(conn, out); err != nil {
			return
		}
	}
}

func (d *devtools) result(method string, params json.RawMessage) map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.methods = append(d.methods, method)

	switch method {
	case "Target.createBrowserContext":
		d.next++
		return map[string]any{"browserContextId": fmt.Sprintf("ctx-%d", d.next)}
	case "Target.createTarget":
		d.next++
		return map[string]any{"targetId": fmt.Sprintf("target-%d", d.next)}
	case "Target.attachToTarget":
		d.next++
		return map[string]any{"sessionId": fmt.Sprintf("session-%d", d.next)}
	case "Page.addScriptToEvaluateOnNewDocument":
		return map[string]any{"identifier": "1"}
	case "Runtime.evaluate":
		var p struct {
			Expression string `json:"expression"`
		}
		_ = json.Unmarshal(params, &p)
		switch {
		case p.Expression == "self":
			return map[string]any{"result": map[string]any{"type": "object", "className": "Window"}}
		case strings.Contains(p.Expression, "document.location"):
			return map[string]any{"result": map[string]any{"type": "string", "value": "about:blank"}}
		}
		return map[string]any{"result": map[string]any{"type": "undefined"}}
	}
	return map[string]any{}
}
