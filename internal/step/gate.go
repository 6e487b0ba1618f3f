// internal/step/gate.go
package step

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cmux-cli/uiverify/internal/browser"
	"github.com/cmux-cli/uiverify/internal/failure"
	"github.com/cmux-cli/uiverify/internal/locator"
	"github.com/cmux-cli/uiverify/internal/wait"
)

// Gate decides whether optional steps run. It probes the page once and never waits
// for the target to appear.
type Gate struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewGate creates a Gate. timeout bounds the page check when the page stops
// answering; a step's own timeout_ms takes precedence and zero means
// wait.DefaultTimeout. logger may be nil.
func NewGate(timeout time.Duration, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = wait.DefaultTimeout
	}
	return &Gate{timeout: timeout, logger: logger.Named("gate")}
}

// ShouldRun reports whether st should execute. Required steps always run. An optional
// step runs only if its target exists and is visible right now; an ambiguous target
// runs so that the executor reports the ambiguity. The reason explains a skip.
//
// Errors other than a missing element (a closed session, an invalid descriptor, a
// page that did not answer in time) are returned so the caller can fail the step.
func (g *Gate) ShouldRun(ctx context.Context, st Step, page browser.Page) (run bool, reason string, err error) {
	if !st.Optional || st.Target == nil {
		return true, "", nil
	}
	bound := g.timeout
	if t := st.Timeout(); t > 0 {
		bound = t
	}
	pctx, cancel := context.WithTimeout(ctx, bound)
	defer cancel()
	snap, err := page.Snapshot(pctx, st.Target.Selectors())
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return false, "", failure.Wrap(fallbackKind(st, err), err, "page did not respond within %s", bound)
		}
		return false, "", err
	}
	ref, err := locator.Resolve(snap, *st.Target)
	switch {
	case err == nil:
	case errors.Is(err, failure.ErrLocatorNotFound):
		g.logger.Debug("optional target absent", zap.String("descriptor", st.Descriptor()))
		return false, "target not present", nil
	case errors.Is(err, failure.ErrAmbiguousLocator):
		return true, "", nil
	default:
		return false, "", err
	}
	if n := snap.Node(ref); n == nil || !n.Visible {
		g.logger.Debug("optional target hidden", zap.String("descriptor", st.Descriptor()))
		return false, "target not visible", nil
	}
	return true, "", nil
}
