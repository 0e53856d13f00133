// Package navwatch re-applies saved styles as tabs navigate. It is the
// ambient counterpart to the editor surface: both feed the same store and
// tab controller but never talk to each other.
//
// One watcher serves the whole browser. Every navigation-complete event is
// handled independently; handlers only read the store, so concurrent events
// need no coordination. Nothing on this path ever reaches the user — every
// failure is logged and dropped, and every event is independently retried by
// the next navigation of the same tab.
package navwatch

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/RemmyNine/chrome-customCSS/domainkey"
	"github.com/RemmyNine/chrome-customCSS/store"
)

// Event is one navigation-complete signal: the tab finished loading URL.
type Event struct {
	TabID string
	URL   string
}

// RuleSource is the read-only slice of the style store the watcher uses.
type RuleSource interface {
	Get(ctx context.Context, domain string) (*store.Rule, error)
}

// Injector is the insert-only injection primitive. A freshly navigated page
// has nothing of ours to remove, so the watcher bypasses the remove step.
type Injector interface {
	Inject(ctx context.Context, tabID, css string) error
}

// Options configures a Watcher.
type Options struct {
	// KeyFor maps a URL to its domain key. Default: domainkey.Resolve.
	KeyFor func(rawURL string) (string, error)
	Logger *slog.Logger
}

// Watcher consumes navigation events and injects the stored rule, if any,
// for each navigated domain.
type Watcher struct {
	rules  RuleSource
	inj    Injector
	keyFor func(string) (string, error)
	logger *slog.Logger

	seen     atomic.Int64
	injected atomic.Int64
	skipped  atomic.Int64
	failed   atomic.Int64
}

// Stats are point-in-time watcher counters.
type Stats struct {
	Seen     int64 `json:"seen"`
	Injected int64 `json:"injected"`
	Skipped  int64 `json:"skipped"`
	Failed   int64 `json:"failed"`
}

// New creates a Watcher. Call Run with an event source to start it.
func New(rules RuleSource, inj Injector, opts Options) *Watcher {
	if opts.KeyFor == nil {
		opts.KeyFor = domainkey.Resolve
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Watcher{rules: rules, inj: inj, keyFor: opts.KeyFor, logger: opts.Logger}
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Seen:     w.seen.Load(),
		Injected: w.injected.Load(),
		Skipped:  w.skipped.Load(),
		Failed:   w.failed.Load(),
	}
}

// Run consumes events until ctx is cancelled or the channel closes. Each
// event is handled in its own goroutine: storage and injection are async
// suspension points, and a slow tab must not delay styling of the others.
func (w *Watcher) Run(ctx context.Context, events <-chan Event) {
	w.logger.Info("navwatch: started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("navwatch: stopped")
			return
		case ev, ok := <-events:
			if !ok {
				w.logger.Info("navwatch: event source closed")
				return
			}
			go w.Handle(ctx, ev)
		}
	}
}

// Handle styles one navigated tab. It never returns an error and never
// panics: the caller is an event loop with no one to report to.
func (w *Watcher) Handle(ctx context.Context, ev Event) {
	w.seen.Add(1)

	key, err := w.keyFor(ev.URL)
	if err != nil {
		// Browser-internal pages and the like: nothing to style.
		w.skipped.Add(1)
		return
	}

	rule, err := w.rules.Get(ctx, key)
	if err != nil {
		// Unknown, not absent: log and leave the page unstyled until the
		// next navigation.
		w.failed.Add(1)
		w.logger.Warn("navwatch: rule lookup failed", "domain", key, "error", err)
		return
	}
	if rule == nil || rule.CSS == "" {
		w.skipped.Add(1)
		return
	}

	if err := w.inj.Inject(ctx, ev.TabID, rule.CSS); err != nil {
		// Tab-gone and access-denied were already absorbed below; whatever
		// reaches here is a real failure, still only logged on this path.
		w.failed.Add(1)
		w.logger.Warn("navwatch: inject failed", "domain", key, "tab", ev.TabID, "error", err)
		return
	}

	w.injected.Add(1)
	w.logger.Debug("navwatch: styled", "domain", key, "tab", ev.TabID, "bytes", len(rule.CSS))
}
