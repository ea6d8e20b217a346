package daemon

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/standardbeagle/webpilot/internal/browser"
	"github.com/standardbeagle/webpilot/internal/config"
	"github.com/standardbeagle/webpilot/internal/protocol"
)

// Session is the browser lifecycle capability consumed by the dispatcher.
// *browser.Manager is the production implementation.
type Session interface {
	// Active reports whether a browser is currently running.
	Active() bool
	// Acquire launches a browser, replacing any existing one.
	Acquire(ctx context.Context, opts browser.Options) error
	// Release tears down the browser. Safe when nothing is active.
	Release() error
	// Execute runs one page action and returns its result payload.
	Execute(cmd *protocol.Command) (map[string]any, error)
}

// Dispatcher routes decoded commands to the browser session. It owns the
// process-wide session state: the mutex serializes acquire/replace/release
// and execution across connections, so a close on one connection cannot race
// a launch or action on another.
type Dispatcher struct {
	mu      sync.Mutex
	session Session
	cfg     *config.Config
}

// NewDispatcher creates a dispatcher over the given session.
func NewDispatcher(session Session, cfg *config.Config) *Dispatcher {
	return &Dispatcher{session: session, cfg: cfg}
}

// Dispatch executes one command and returns its response, plus whether the
// command requested daemon shutdown. Panics in execution are contained here
// and become internal error responses; they never take down the connection
// or the daemon.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd *protocol.Command) (resp *protocol.Response, shutdown bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Dispatch] panic in %s: %v", cmd.Action, r)
			resp = protocol.ErrorResponse(cmd.ID, protocol.ErrInternal,
				fmt.Sprintf("internal error executing %s", cmd.Action))
			shutdown = false
		}
	}()

	switch cmd.Action {
	case protocol.ActionLaunch:
		opts := browser.OptionsFromCommand(cmd, d.cfg.Browser)
		if err := d.session.Acquire(ctx, opts); err != nil {
			return protocol.ErrorResponse(cmd.ID, protocol.ErrAcquisitionFailed, err.Error()), false
		}
		return protocol.OKResponse(cmd.ID, map[string]any{
			"launched": true,
			"engine":   opts.Engine,
			"headless": opts.Headless,
		}), false

	case protocol.ActionClose:
		if err := d.session.Release(); err != nil {
			// Best effort: the daemon still shuts down.
			log.Printf("[Dispatch] release on close: %v", err)
		}
		return protocol.OKResponse(cmd.ID, map[string]any{"closed": true}), true

	default:
		// Implicit acquisition: the first real command brings the browser
		// up with defaults.
		if !d.session.Active() {
			opts := browser.OptionsFromConfig(d.cfg.Browser)
			log.Printf("[Dispatch] implicit launch for %s (%s)", cmd.Action, cmd.ID)
			if err := d.session.Acquire(ctx, opts); err != nil {
				return protocol.ErrorResponse(cmd.ID, protocol.ErrAcquisitionFailed, err.Error()), false
			}
		}

		data, err := d.session.Execute(cmd)
		if err != nil {
			// A failed action never tears down the browser.
			return protocol.ErrorResponse(cmd.ID, protocol.ErrExecutionFailed, err.Error()), false
		}
		return protocol.OKResponse(cmd.ID, data), false
	}
}

// ReleaseSession releases the browser under the dispatcher lock. Used by the
// daemon's shutdown path; failures are ignored there.
func (d *Dispatcher) ReleaseSession() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session.Release()
}
