// Package browser drives Chrome over the DevTools protocol via Rod. It
// owns the browser connection, resolves tabs, and turns raw CDP failures
// into the inject error taxonomy.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures the browser Manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an already-running Chrome
	// (typically the user's own browser started with
	// --remote-debugging-port). Empty = launch a local Chrome.
	RemoteURL string

	// Headless applies to locally launched Chrome only. Default: false
	// (a visible browser; the user is expected to look at the styled tabs).
	Headless bool

	// Stealth creates preview tabs through the stealth bundle so that
	// sites which fingerprint automation render normally.
	Stealth bool

	// LoadTimeout bounds the wait for a navigating page to finish loading.
	// Default: 30s.
	LoadTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// TabInfo is a point-in-time snapshot of one page target.
type TabInfo struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Manager manages the Chrome connection lifecycle.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewManager creates a Manager. Call Start to connect.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start connects to the remote Chrome or launches a local one.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}

	log := m.cfg.Logger
	wsURL := m.cfg.RemoteURL

	if wsURL == "" {
		l := launcher.New().Headless(m.cfg.Headless)
		l = l.Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "headless", m.cfg.Headless)
	} else {
		log.Info("browser: connecting to remote", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("browser: connect: %w", err)
	}
	m.browser = b
	return nil
}

// Browser returns the current Rod browser handle. Thread-safe.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Close disconnects and, for a locally launched Chrome, tears it down.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return nil
}

// OpenTab creates a new tab (stealth if configured), navigates it to url and
// waits for the load to settle. A load-wait timeout is logged, not fatal —
// the tab exists and the navigation watcher will pick it up regardless.
func (m *Manager) OpenTab(ctx context.Context, url string) (TabInfo, error) {
	b := m.Browser()
	if b == nil {
		return TabInfo{}, fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error
	if m.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return TabInfo{}, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.LoadTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		page.Close()
		return TabInfo{}, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		m.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}

	return TabInfo{ID: string(page.TargetID), URL: url}, nil
}
