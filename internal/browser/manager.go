// Package browser manages the shared automation browser and executes page
// actions against it using chromedp.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/standardbeagle/webpilot/internal/config"
	"github.com/standardbeagle/webpilot/internal/protocol"
)

// ErrNotActive is returned when an action is executed without a live browser.
var ErrNotActive = errors.New("no active browser")

// Options configure a browser launch.
type Options struct {
	// Engine selects the browser: "chromium" (default lookup), "chrome",
	// "chrome-beta", "edge", or an absolute executable path.
	Engine   string
	Headless bool
	Width    int
	Height   int
}

// OptionsFromConfig builds launch options from config defaults.
func OptionsFromConfig(cfg config.BrowserConfig) Options {
	return Options{
		Engine:   cfg.Engine,
		Headless: cfg.Headless,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}
}

// OptionsFromCommand builds launch options from a launch command, filling
// unset fields from config defaults.
func OptionsFromCommand(cmd *protocol.Command, cfg config.BrowserConfig) Options {
	opts := OptionsFromConfig(cfg)
	if cmd.Engine != "" {
		opts.Engine = cmd.Engine
	}
	if cmd.Headless != nil {
		opts.Headless = *cmd.Headless
	}
	if cmd.Width > 0 {
		opts.Width = cmd.Width
	}
	if cmd.Height > 0 {
		opts.Height = cmd.Height
	}
	return opts
}

// Manager owns the single browser instance shared by all daemon connections.
//
// Manager is not safe for concurrent use; the dispatcher serializes access
// so acquire/replace/release cannot race across connections.
type Manager struct {
	navTimeout    time.Duration
	actionTimeout time.Duration

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewManager creates a browser manager with the given default timeouts.
func NewManager(navTimeout, actionTimeout time.Duration) *Manager {
	return &Manager{
		navTimeout:    navTimeout,
		actionTimeout: actionTimeout,
	}
}

// Active reports whether a browser is currently running.
func (m *Manager) Active() bool {
	return m.browserCtx != nil
}

// Acquire launches a browser with the given options. An existing browser is
// released first, so a second launch replaces the session wholesale.
func (m *Manager) Acquire(ctx context.Context, opts Options) error {
	if m.Active() {
		if err := m.Release(); err != nil {
			log.Printf("[Browser] release before relaunch: %v", err)
		}
	}

	execPath, err := resolveEngine(opts.Engine)
	if err != nil {
		return err
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	if execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Run a no-op to force the browser process to start now, so acquisition
	// failures surface here instead of on the first action.
	startCtx, cancel := context.WithTimeout(browserCtx, m.navTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("launch browser: %w", err)
	}

	m.allocCtx = allocCtx
	m.allocCancel = allocCancel
	m.browserCtx = browserCtx
	m.browserCancel = browserCancel

	log.Printf("[Browser] launched engine=%s headless=%v viewport=%dx%d",
		engineName(opts.Engine), opts.Headless, opts.Width, opts.Height)
	return nil
}

// Release tears down the browser. Safe to call when nothing is active.
func (m *Manager) Release() error {
	if !m.Active() {
		return nil
	}

	m.browserCancel()
	m.allocCancel()
	m.browserCtx = nil
	m.browserCancel = nil
	m.allocCtx = nil
	m.allocCancel = nil

	log.Printf("[Browser] released")
	return nil
}

// actionContext derives a bounded context for a single action. Commands may
// carry their own timeout; otherwise the manager default applies, with
// navigations allowed the longer window.
func (m *Manager) actionContext(cmd *protocol.Command) (context.Context, context.CancelFunc) {
	timeout := m.actionTimeout
	if cmd.Action == protocol.ActionNavigate {
		timeout = m.navTimeout
	}
	if cmd.TimeoutMS > 0 {
		timeout = time.Duration(cmd.TimeoutMS) * time.Millisecond
	}
	return context.WithTimeout(m.browserCtx, timeout)
}

// resolveEngine maps an engine name to an executable path. An empty result
// with nil error means chromedp's default lookup should be used.
func resolveEngine(engine string) (string, error) {
	switch engine {
	case "", "chromium":
		return "", nil
	case "chrome":
		return lookupFirst("google-chrome", "google-chrome-stable", "chrome")
	case "chrome-beta":
		return lookupFirst("google-chrome-beta")
	case "edge":
		return lookupFirst("microsoft-edge", "microsoft-edge-stable", "msedge")
	}
	if strings.HasPrefix(engine, "/") {
		return engine, nil
	}
	return "", fmt.Errorf("unsupported engine %q", engine)
}

func lookupFirst(names ...string) (string, error) {
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("browser executable not found (tried %s)", strings.Join(names, ", "))
}

func engineName(engine string) string {
	if engine == "" {
		return "chromium"
	}
	return engine
}
