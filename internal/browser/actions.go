package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/standardbeagle/webpilot/internal/protocol"
)

// namedKeys maps human-readable key names from press commands to the control
// sequences chromedp understands.
var namedKeys = map[string]string{
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Escape":     kb.Escape,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
	"Home":       kb.Home,
	"End":        kb.End,
}

// KeySequence translates a key name to the sequence sent to the page.
// Unrecognized names are sent as their literal runes.
func KeySequence(name string) string {
	if seq, ok := namedKeys[name]; ok {
		return seq
	}
	return name
}

// Execute runs a single page action against the active browser and returns
// the action's result payload. A failed action leaves the browser untouched.
func (m *Manager) Execute(cmd *protocol.Command) (map[string]any, error) {
	if !m.Active() {
		return nil, ErrNotActive
	}

	ctx, cancel := m.actionContext(cmd)
	defer cancel()

	switch cmd.Action {
	case protocol.ActionNavigate:
		if cmd.URL == "" {
			return nil, fmt.Errorf("navigate requires url")
		}
		var loc, title string
		err := chromedp.Run(ctx,
			chromedp.Navigate(cmd.URL),
			chromedp.WaitReady("body"),
			chromedp.Location(&loc),
			chromedp.Title(&title),
		)
		if err != nil {
			return nil, fmt.Errorf("navigate to %s: %w", cmd.URL, err)
		}
		return map[string]any{"url": loc, "title": title}, nil

	case protocol.ActionClick:
		if cmd.Selector == "" {
			return nil, fmt.Errorf("click requires selector")
		}
		if err := chromedp.Run(ctx, chromedp.Click(cmd.Selector, chromedp.ByQuery)); err != nil {
			return nil, fmt.Errorf("click %s: %w", cmd.Selector, err)
		}
		return map[string]any{"clicked": cmd.Selector}, nil

	case protocol.ActionType:
		if cmd.Selector == "" {
			return nil, fmt.Errorf("type requires selector")
		}
		err := chromedp.Run(ctx,
			chromedp.Clear(cmd.Selector, chromedp.ByQuery),
			chromedp.SendKeys(cmd.Selector, cmd.Text, chromedp.ByQuery),
		)
		if err != nil {
			return nil, fmt.Errorf("type into %s: %w", cmd.Selector, err)
		}
		return map[string]any{"selector": cmd.Selector, "typed": len(cmd.Text)}, nil

	case protocol.ActionPress:
		if cmd.Key == "" {
			return nil, fmt.Errorf("press requires key")
		}
		seq := KeySequence(cmd.Key)
		var err error
		if cmd.Selector != "" {
			err = chromedp.Run(ctx, chromedp.SendKeys(cmd.Selector, seq, chromedp.ByQuery))
		} else {
			err = chromedp.Run(ctx, chromedp.KeyEvent(seq))
		}
		if err != nil {
			return nil, fmt.Errorf("press %s: %w", cmd.Key, err)
		}
		return map[string]any{"pressed": cmd.Key}, nil

	case protocol.ActionWait:
		return m.executeWait(ctx, cmd)

	case protocol.ActionScreenshot:
		return m.executeScreenshot(ctx, cmd)

	case protocol.ActionSnapshot:
		return m.executeSnapshot(ctx)

	case protocol.ActionContent:
		return m.executeContent(ctx, cmd)

	case protocol.ActionEvaluate:
		if cmd.Expression == "" {
			return nil, fmt.Errorf("evaluate requires expression")
		}
		var raw json.RawMessage
		if err := chromedp.Run(ctx, chromedp.Evaluate(cmd.Expression, &raw)); err != nil {
			return nil, fmt.Errorf("evaluate: %w", err)
		}
		return map[string]any{"result": raw}, nil

	case protocol.ActionScroll:
		return m.executeScroll(ctx, cmd)

	case protocol.ActionHover:
		if cmd.Selector == "" {
			return nil, fmt.Errorf("hover requires selector")
		}
		var found bool
		script := fmt.Sprintf(`(() => {
			const el = document.querySelector(%q);
			if (!el) return false;
			for (const type of ['mouseenter', 'mouseover']) {
				el.dispatchEvent(new MouseEvent(type, {bubbles: true, cancelable: true, view: window}));
			}
			return true;
		})()`, cmd.Selector)
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, &found)); err != nil {
			return nil, fmt.Errorf("hover %s: %w", cmd.Selector, err)
		}
		if !found {
			return nil, fmt.Errorf("hover %s: no matching element", cmd.Selector)
		}
		return map[string]any{"hovered": cmd.Selector}, nil

	case protocol.ActionSelect:
		if cmd.Selector == "" {
			return nil, fmt.Errorf("select requires selector")
		}
		err := chromedp.Run(ctx,
			chromedp.SetValue(cmd.Selector, cmd.Value, chromedp.ByQuery),
			chromedp.Evaluate(fmt.Sprintf(`(() => {
				const el = document.querySelector(%q);
				if (el) el.dispatchEvent(new Event('change', {bubbles: true}));
			})()`, cmd.Selector), nil),
		)
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", cmd.Selector, err)
		}
		return map[string]any{"selector": cmd.Selector, "value": cmd.Value}, nil
	}

	return nil, fmt.Errorf("action %q is not executable", cmd.Action)
}

// executeWait waits for a selector to become visible, or for text to appear
// anywhere in the page body when a text target is given instead.
func (m *Manager) executeWait(ctx context.Context, cmd *protocol.Command) (map[string]any, error) {
	if cmd.Text != "" {
		script := fmt.Sprintf(
			`document.body && document.body.innerText.includes(%q)`, cmd.Text)
		for {
			var present bool
			if err := chromedp.Run(ctx, chromedp.Evaluate(script, &present)); err != nil {
				return nil, fmt.Errorf("wait for text %q: %w", cmd.Text, err)
			}
			if present {
				return map[string]any{"found": true, "text": cmd.Text}, nil
			}
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("wait for text %q: %w", cmd.Text, ctx.Err())
			case <-time.After(100 * time.Millisecond):
			}
		}
	}

	if cmd.Selector == "" {
		return nil, fmt.Errorf("wait requires selector or text")
	}
	if err := chromedp.Run(ctx, chromedp.WaitVisible(cmd.Selector, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("wait for %s: %w", cmd.Selector, err)
	}
	return map[string]any{"found": true, "selector": cmd.Selector}, nil
}

// executeScreenshot captures the viewport, or the whole page with full_page,
// and writes a PNG to the requested path.
func (m *Manager) executeScreenshot(ctx context.Context, cmd *protocol.Command) (map[string]any, error) {
	var buf []byte
	var err error
	if cmd.FullPage {
		err = chromedp.Run(ctx, chromedp.FullScreenshot(&buf, 90))
	} else {
		err = chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf))
	}
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}

	path := cmd.Path
	if path == "" {
		path = filepath.Join(os.TempDir(),
			fmt.Sprintf("webpilot-%d.png", time.Now().UnixMilli()))
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return nil, fmt.Errorf("write screenshot: %w", err)
	}
	return map[string]any{"path": path, "bytes": len(buf), "full_page": cmd.FullPage}, nil
}

// snapshotScript collects the interactive elements of the page: the pieces a
// caller needs to decide what to click, type into, or select next.
const snapshotScript = `(() => {
	const els = Array.from(document.querySelectorAll(
		'a, button, input, select, textarea, [role="button"], [role="link"]'
	)).slice(0, 200).map((el, i) => {
		const entry = {
			index: i,
			tag: el.tagName.toLowerCase(),
			text: (el.innerText || el.value || '').trim().slice(0, 80),
		};
		if (el.id) entry.id = el.id;
		if (el.name) entry.name = el.name;
		if (el.type) entry.type = el.type;
		const href = el.getAttribute('href');
		if (href) entry.href = href;
		return entry;
	});
	return { elements: els };
})()`

// executeSnapshot returns the page identity plus an outline of interactive
// elements.
func (m *Manager) executeSnapshot(ctx context.Context) (map[string]any, error) {
	var loc, title string
	var outline map[string]any
	err := chromedp.Run(ctx,
		chromedp.Location(&loc),
		chromedp.Title(&title),
		chromedp.Evaluate(snapshotScript, &outline),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return map[string]any{
		"url":      loc,
		"title":    title,
		"elements": outline["elements"],
	}, nil
}

// executeContent extracts page content as text (default) or HTML.
func (m *Manager) executeContent(ctx context.Context, cmd *protocol.Command) (map[string]any, error) {
	sel := cmd.Selector
	if sel == "" {
		sel = "body"
	}

	var content string
	var err error
	if strings.EqualFold(cmd.Format, "html") {
		err = chromedp.Run(ctx, chromedp.OuterHTML(sel, &content, chromedp.ByQuery))
	} else {
		err = chromedp.Run(ctx, chromedp.Text(sel, &content, chromedp.ByQuery))
	}
	if err != nil {
		return nil, fmt.Errorf("extract content from %s: %w", sel, err)
	}
	return map[string]any{"selector": sel, "content": content}, nil
}

// executeScroll scrolls an element into view, by an explicit delta, or by one
// viewport height when nothing else is specified.
func (m *Manager) executeScroll(ctx context.Context, cmd *protocol.Command) (map[string]any, error) {
	if cmd.Selector != "" {
		if err := chromedp.Run(ctx, chromedp.ScrollIntoView(cmd.Selector, chromedp.ByQuery)); err != nil {
			return nil, fmt.Errorf("scroll to %s: %w", cmd.Selector, err)
		}
		return map[string]any{"scrolled_to": cmd.Selector}, nil
	}

	dx, dy := cmd.DeltaX, cmd.DeltaY
	script := fmt.Sprintf("window.scrollBy(%d, %d)", dx, dy)
	if dx == 0 && dy == 0 {
		script = "window.scrollBy(0, window.innerHeight)"
	}
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, nil)); err != nil {
		return nil, fmt.Errorf("scroll: %w", err)
	}
	return map[string]any{"scrolled": true}, nil
}
