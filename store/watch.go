package store

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// WatchOptions tunes the change watcher.
type WatchOptions struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before the action fires;
	// further changes during the window reset the timer. 0 fires immediately.
	Debounce time.Duration
	Logger   *slog.Logger
}

func (o *WatchOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher polls the rules database for external writes and runs an action
// when one is detected. It uses PRAGMA data_version, which increments when
// another connection writes the same database file — writes made through
// this process's own connection do not trigger it (those paths already
// re-apply styles themselves).
type Watcher struct {
	store   *Store
	opts    WatchOptions
	version atomic.Int64

	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
}

// WatchStats are point-in-time watcher counters.
type WatchStats struct {
	Checks  int64 `json:"checks"`
	Changes int64 `json:"changes"`
	Errors  int64 `json:"errors"`
}

// NewWatcher creates a Watcher over the store. Call Run to start polling.
func NewWatcher(s *Store, opts WatchOptions) *Watcher {
	opts.defaults()
	return &Watcher{store: s, opts: opts}
}

// Stats returns the current counters.
func (w *Watcher) Stats() WatchStats {
	return WatchStats{
		Checks:  w.checks.Load(),
		Changes: w.changes.Load(),
		Errors:  w.errors.Load(),
	}
}

// Run blocks until ctx is cancelled, polling at opts.Interval and invoking
// action after each detected change (debounced). Action errors are logged
// and the version is not advanced, so the action retries on the next poll.
func (w *Watcher) Run(ctx context.Context, action func(context.Context) error) {
	log := w.opts.Logger

	if v, err := w.dataVersion(ctx); err != nil {
		log.Warn("store watch: initial version check failed", "error", err)
	} else {
		w.version.Store(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	pending := int64(-1)

	log.Info("store watch: started", "interval", w.opts.Interval, "debounce", w.opts.Debounce)

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			log.Info("store watch: stopped")
			return

		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.dataVersion(ctx)
			if err != nil {
				w.errors.Add(1)
				log.Warn("store watch: version check failed", "error", err)
				continue
			}
			if cur == w.version.Load() || cur == pending {
				continue
			}
			w.changes.Add(1)
			pending = cur

			if w.opts.Debounce <= 0 {
				w.fire(ctx, action, pending)
				pending = -1
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.opts.Debounce)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			debounceCh = nil
			if pending >= 0 {
				w.fire(ctx, action, pending)
				pending = -1
			}
		}
	}
}

func (w *Watcher) fire(ctx context.Context, action func(context.Context) error, ver int64) {
	log := w.opts.Logger
	log.Info("store watch: rules changed externally", "version", ver)
	if err := action(ctx); err != nil {
		w.errors.Add(1)
		log.Error("store watch: reapply failed", "error", err)
		return
	}
	w.version.Store(ver)
}

func (w *Watcher) dataVersion(ctx context.Context) (int64, error) {
	var v int64
	err := w.store.DB.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}
