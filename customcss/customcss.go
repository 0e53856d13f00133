// Package customcss is the per-domain stylesheet keeper.
//
// It wires the pieces together:
//
//	browser events → navwatch → inject (re-style on every navigation)
//	editor session → store + inject (authoring from the active tab)
//	store watcher  → re-apply     (external edits to the rules database)
//
// Usage:
//
//	svc, err := customcss.New(cfg, logger)
//	defer svc.Close()
//	svc.RegisterMCP(mcpServer)
//	svc.Start(ctx)
package customcss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/RemmyNine/chrome-customCSS/domainkey"
	"github.com/RemmyNine/chrome-customCSS/editor"
	"github.com/RemmyNine/chrome-customCSS/inject"
	"github.com/RemmyNine/chrome-customCSS/internal/browser"
	"github.com/RemmyNine/chrome-customCSS/navwatch"
	"github.com/RemmyNine/chrome-customCSS/store"
)

// ErrNoSession rejects editor operations when no session is open.
var ErrNoSession = errors.New("customcss: no open editor session")

// Driver abstracts the CDP layer so the service can run against a fake in
// tests. *browser.Manager is the production implementation.
type Driver interface {
	Start(ctx context.Context) error
	Close() error
	Get(ctx context.Context, tabID string) (inject.Tab, error)
	Active(ctx context.Context) (editor.ActiveTab, error)
	List(ctx context.Context) ([]browser.TabInfo, error)
	OpenTab(ctx context.Context, url string) (browser.TabInfo, error)
	Events(ctx context.Context) <-chan navwatch.Event
}

// Service is the main orchestrator.
type Service struct {
	store   *store.Store
	driver  Driver
	ctrl    *inject.Controller
	nav     *navwatch.Watcher
	dbwatch *store.Watcher
	keyFor  func(string) (string, error)
	logger  *slog.Logger
	config  *Config

	mu      sync.Mutex
	session *editor.Session
}

// New creates a Service. Opens the rules database and prepares a browser
// manager; the browser itself connects on Start.
func New(cfg *Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	drv := browser.NewManager(browser.Config{
		RemoteURL:   cfg.Browser.RemoteURL,
		Headless:    cfg.Browser.Headless,
		Stealth:     cfg.Browser.Stealth,
		LoadTimeout: cfg.Browser.LoadTimeout,
		Logger:      logger,
	})

	return newService(st, drv, cfg, logger), nil
}

// newService wires an already-open store and driver. Split out of New so
// tests can supply both.
func newService(st *store.Store, drv Driver, cfg *Config, logger *slog.Logger) *Service {
	keyFor := domainkey.Resolve
	if cfg.GroupSubdomains {
		keyFor = func(rawURL string) (string, error) {
			host, err := domainkey.Resolve(rawURL)
			if err != nil {
				return "", err
			}
			return domainkey.Registrable(host), nil
		}
	}

	ctrl := inject.NewController(drv, logger)
	svc := &Service{
		store:  st,
		driver: drv,
		ctrl:   ctrl,
		keyFor: keyFor,
		logger: logger,
		config: cfg,
	}
	svc.nav = navwatch.New(st, ctrl, navwatch.Options{KeyFor: keyFor, Logger: logger})
	svc.dbwatch = store.NewWatcher(st, store.WatchOptions{
		Interval: cfg.Watch.Interval,
		Debounce: cfg.Watch.Debounce,
		Logger:   logger,
	})
	return svc
}

// Start connects the browser and launches the background loops: the
// navigation watcher and the external-edit watcher. Both stop on ctx.
func (s *Service) Start(ctx context.Context) error {
	if err := s.driver.Start(ctx); err != nil {
		return err
	}
	go s.nav.Run(ctx, s.driver.Events(ctx))
	go s.dbwatch.Run(ctx, s.reapplyAll)
	s.logger.Info("customcss: started", "db", s.config.DBPath)
	return nil
}

// Close shuts down the browser connection and the database.
func (s *Service) Close() error {
	var errs []error
	if err := s.driver.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Store returns the underlying store for direct access (testing, admin).
func (s *Service) Store() *store.Store {
	return s.store
}

// reapplyAll pushes the current rules onto every open tab. This is the
// recovery path after an external edit of the rules database: the running
// process cannot know which rows changed, so it re-applies everything.
func (s *Service) reapplyAll(ctx context.Context) error {
	tabs, err := s.driver.List(ctx)
	if err != nil {
		return fmt.Errorf("customcss: list tabs: %w", err)
	}

	byKey := make(map[string][]string) // domain key -> tab IDs
	for _, t := range tabs {
		key, err := s.keyFor(t.URL)
		if err != nil {
			continue
		}
		byKey[key] = append(byKey[key], t.ID)
	}
	if len(byKey) == 0 {
		return nil
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	rules, err := s.store.GetBatch(ctx, keys)
	if err != nil {
		return err
	}

	for key, rule := range rules {
		for _, tabID := range byKey[key] {
			if err := s.ctrl.Apply(ctx, tabID, rule.CSS); err != nil {
				s.logger.Warn("customcss: reapply failed", "domain", key, "tab", tabID, "error", err)
			}
		}
	}
	return nil
}

// reapplyDomain pushes css onto every open tab whose URL resolves to domain.
func (s *Service) reapplyDomain(ctx context.Context, domain, css string) {
	for _, tabID := range s.tabsFor(ctx, domain) {
		if err := s.ctrl.Apply(ctx, tabID, css); err != nil {
			s.logger.Warn("customcss: apply failed", "domain", domain, "tab", tabID, "error", err)
		}
	}
}

// tabsFor lists the open tabs whose URL resolves to domain. Errors yield an
// empty slice: callers use this for best-effort propagation only.
func (s *Service) tabsFor(ctx context.Context, domain string) []string {
	tabs, err := s.driver.List(ctx)
	if err != nil {
		s.logger.Warn("customcss: list tabs failed", "error", err)
		return nil
	}
	var ids []string
	for _, t := range tabs {
		key, err := s.keyFor(t.URL)
		if err != nil || key != domain {
			continue
		}
		ids = append(ids, t.ID)
	}
	return ids
}
