package browser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/proto"

	"github.com/RemmyNine/chrome-customCSS/editor"
	"github.com/RemmyNine/chrome-customCSS/inject"
)

// Injected styles live in <style> elements tagged with data-customcss. The
// attribute value is a digest of the rule text, so re-inserting the same
// text is idempotent and removal can target an exact rule without tracking
// state between navigations.
const insertJS = `(css, id) => {
	let el = document.querySelector('style[data-customcss="' + id + '"]');
	if (!el) {
		el = document.createElement('style');
		el.setAttribute('data-customcss', id);
		(document.head || document.documentElement).appendChild(el);
	}
	el.textContent = css;
}`

const removeJS = `(css) => {
	let n = 0;
	for (const el of document.querySelectorAll('style[data-customcss]')) {
		if (el.textContent === css) {
			el.remove();
			n++;
		}
	}
	return n;
}`

func styleID(css string) string {
	sum := sha256.Sum256([]byte(css))
	return hex.EncodeToString(sum[:8])
}

// Tab wraps one page target with the two injection primitives.
type Tab struct {
	page *rod.Page
}

// InsertCSS appends (or refreshes) a tagged style element holding css.
func (t *Tab) InsertCSS(ctx context.Context, css string) error {
	_, err := t.page.Context(ctx).Eval(insertJS, css, styleID(css))
	return classify(err)
}

// RemoveCSS removes every tagged style element whose text equals css.
// Removing text that was never inserted is a no-op, not an error.
func (t *Tab) RemoveCSS(ctx context.Context, css string) error {
	_, err := t.page.Context(ctx).Eval(removeJS, css)
	return classify(err)
}

// Get resolves a tab ID to a live page handle. A stale ID classifies as
// tab-gone so callers on the ambient path can drop it silently.
func (m *Manager) Get(ctx context.Context, tabID string) (inject.Tab, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("%w: no active browser", inject.ErrTabGone)
	}
	page, err := b.Context(ctx).PageFromTarget(proto.TargetTargetID(tabID))
	if err != nil {
		return nil, classify(err)
	}
	return &Tab{page: page}, nil
}

// Active returns the tab the user is looking at. Visibility is asked of each
// page; pages that refuse the question (browser-internal surfaces) are
// skipped, and if nothing claims to be visible the first page wins.
func (m *Manager) Active(ctx context.Context) (editor.ActiveTab, error) {
	tabs, err := m.List(ctx)
	if err != nil {
		return editor.ActiveTab{}, err
	}
	if len(tabs) == 0 {
		return editor.ActiveTab{}, fmt.Errorf("browser: no open tabs")
	}

	b := m.Browser()
	for _, ti := range tabs {
		page, err := b.Context(ctx).PageFromTarget(proto.TargetTargetID(ti.ID))
		if err != nil {
			continue
		}
		res, err := page.Context(ctx).Eval(`() => document.visibilityState`)
		if err != nil {
			continue
		}
		if res.Value.Str() == "visible" {
			return editor.ActiveTab{ID: ti.ID, URL: ti.URL}, nil
		}
	}
	return editor.ActiveTab{ID: tabs[0].ID, URL: tabs[0].URL}, nil
}

// List snapshots the open page targets.
func (m *Manager) List(ctx context.Context) ([]TabInfo, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	pages, err := b.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("browser: list pages: %w", err)
	}
	out := make([]TabInfo, 0, len(pages))
	for _, p := range pages {
		info, err := p.Context(ctx).Info()
		if err != nil {
			continue
		}
		out = append(out, TabInfo{ID: string(p.TargetID), URL: info.URL})
	}
	return out, nil
}

// classify maps raw CDP failures onto the injection error taxonomy. Chrome
// reports these conditions as free-text messages, so matching is by
// substring.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var cdpErr *cdp.Error
	if errors.As(err, &cdpErr) {
		msg := cdpErr.Message
		switch {
		case strings.Contains(msg, "No target with given id"),
			strings.Contains(msg, "Target closed"),
			strings.Contains(msg, "Session closed"),
			strings.Contains(msg, "Cannot find context"),
			strings.Contains(msg, "Inspected target navigated or closed"):
			return fmt.Errorf("%w: %s", inject.ErrTabGone, msg)
		case strings.Contains(msg, "Cannot access"),
			strings.Contains(msg, "not allowed"):
			return fmt.Errorf("%w: %s", inject.ErrAccessDenied, msg)
		}
	}

	// Shutdown and detach race with in-flight evals; the tab is as good as
	// gone either way.
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", inject.ErrTabGone, err)
	}
	return err
}
