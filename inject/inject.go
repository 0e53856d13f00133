// Package inject applies and removes CSS on live browser tabs.
//
// The controller keeps no registry of what is currently live in a tab: the
// injection primitive requires the exact text to remove, and the only record
// of that text is whatever the caller still holds. Removal is therefore
// best-effort cleanup, never correctness-bearing — the authoritative recovery
// path is a page reload, after which the navigation watcher re-applies the
// single current rule for the domain and supersedes anything stale.
package inject

import (
	"context"
	"fmt"
	"log/slog"
)

// Tab is one scriptable browser tab.
type Tab interface {
	// InsertCSS adds css to the tab's live document. Idempotent for
	// identical text.
	InsertCSS(ctx context.Context, css string) error
	// RemoveCSS removes previously inserted CSS whose text matches css
	// exactly. Removing text that was never inserted is a no-op.
	RemoveCSS(ctx context.Context, css string) error
}

// Tabs looks up tabs by id. Get returns an error wrapping ErrTabGone for a
// tab that no longer exists.
type Tabs interface {
	Get(ctx context.Context, tabID string) (Tab, error)
}

// Controller applies style rules to tabs with the propagation policy of the
// package doc: tab-gone and access-denied races are absorbed here.
type Controller struct {
	tabs   Tabs
	logger *slog.Logger
}

// NewController creates a Controller over the given tab source.
func NewController(tabs Tabs, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{tabs: tabs, logger: logger}
}

// Apply injects css into the tab, the full sequence being remove-then-insert.
// Empty css is a no-op. The remove attempt targets the same text the caller
// holds now, not whatever is actually live in the tab (there is no record of
// that — see the package doc), and its failure never blocks the insert. The
// remove always precedes the insert within one Apply.
//
// Returns nil on success and on swallowed races; ErrInvalidCSS or
// ErrInjectionFailed otherwise.
func (c *Controller) Apply(ctx context.Context, tabID, css string) error {
	if css == "" {
		return nil
	}
	if err := ValidateCSS(css); err != nil {
		return err
	}

	c.RemoveLast(ctx, tabID, css)

	tab, err := c.tabs.Get(ctx, tabID)
	if err != nil {
		return c.absorb("apply lookup", tabID, err)
	}
	if err := tab.InsertCSS(ctx, css); err != nil {
		return c.absorb("apply insert", tabID, err)
	}
	return nil
}

// RemoveLast attempts to remove css from the tab. All failures are swallowed
// and logged at debug level: removal is cleanup, and a tab that refuses it
// will be corrected on its next navigation anyway.
func (c *Controller) RemoveLast(ctx context.Context, tabID, css string) {
	if css == "" {
		return
	}
	tab, err := c.tabs.Get(ctx, tabID)
	if err != nil {
		c.logger.Debug("inject: remove lookup failed", "tab", tabID, "error", err)
		return
	}
	if err := tab.RemoveCSS(ctx, css); err != nil {
		c.logger.Debug("inject: remove failed", "tab", tabID, "error", err)
	}
}

// Inject inserts css into the tab without a prior remove step. This is the
// navigation path: a freshly loaded document has nothing of ours to remove.
// Empty css is a no-op. Swallowing matches Apply.
func (c *Controller) Inject(ctx context.Context, tabID, css string) error {
	if css == "" {
		return nil
	}
	tab, err := c.tabs.Get(ctx, tabID)
	if err != nil {
		return c.absorb("inject lookup", tabID, err)
	}
	if err := tab.InsertCSS(ctx, css); err != nil {
		return c.absorb("inject insert", tabID, err)
	}
	return nil
}

// absorb implements the swallow policy: tab-gone and access-denied return
// nil after logging; everything else wraps ErrInjectionFailed.
func (c *Controller) absorb(op, tabID string, err error) error {
	if Swallowable(err) {
		c.logger.Info("inject: race swallowed", "op", op, "tab", tabID, "error", err)
		return nil
	}
	return fmt.Errorf("%w: %s tab %s: %v", ErrInjectionFailed, op, tabID, err)
}
