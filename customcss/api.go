package customcss

import (
	"context"
	"fmt"
	"strings"

	"github.com/RemmyNine/chrome-customCSS/editor"
	"github.com/RemmyNine/chrome-customCSS/inject"
	"github.com/RemmyNine/chrome-customCSS/internal/browser"
	"github.com/RemmyNine/chrome-customCSS/navwatch"
	"github.com/RemmyNine/chrome-customCSS/store"
)

// SetRule validates and stores css for domain, then applies it to every open
// tab of that domain. An empty css behaves as DeleteRule. Tab propagation is
// best-effort; the rule is authoritative once stored.
func (s *Service) SetRule(ctx context.Context, domain, css string) (*store.Rule, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, fmt.Errorf("customcss: empty domain")
	}
	css = strings.TrimSpace(css)
	if css == "" {
		if err := s.DeleteRule(ctx, domain); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := inject.ValidateCSS(css); err != nil {
		return nil, err
	}

	if err := s.store.Set(ctx, domain, css); err != nil {
		return nil, err
	}
	s.reapplyDomain(ctx, domain, css)
	return s.store.Get(ctx, domain)
}

// GetRule returns the rule for domain, or nil if none exists.
func (s *Service) GetRule(ctx context.Context, domain string) (*store.Rule, error) {
	return s.store.Get(ctx, strings.ToLower(strings.TrimSpace(domain)))
}

// ListRules returns all stored rules ordered by domain.
func (s *Service) ListRules(ctx context.Context) ([]*store.Rule, error) {
	return s.store.List(ctx)
}

// DeleteRule removes the rule for domain and best-effort strips the removed
// text from the domain's open tabs. Deleting an absent rule succeeds.
func (s *Service) DeleteRule(ctx context.Context, domain string) error {
	domain = strings.ToLower(strings.TrimSpace(domain))

	// The removed text is needed for tab cleanup, so read before deleting.
	rule, err := s.store.Get(ctx, domain)
	if err != nil {
		return err
	}
	if err := s.store.Remove(ctx, domain); err != nil {
		return err
	}
	if rule != nil {
		for _, tabID := range s.tabsFor(ctx, domain) {
			s.ctrl.RemoveLast(ctx, tabID, rule.CSS)
		}
	}
	return nil
}

// OpenSession opens an editor session bound to the currently active tab,
// replacing any previous session. The popup surface is single-instance, so
// the newest session is the only one that matters.
func (s *Service) OpenSession(ctx context.Context) (*editor.Session, error) {
	sess, err := editor.Open(ctx, s.driver, s.store, s.ctrl, editor.Options{
		KeyFor:    s.keyFor,
		StatusTTL: s.config.StatusTTL,
		Logger:    s.logger,
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
	return sess, nil
}

// Session returns the current editor session, or nil.
func (s *Service) Session() *editor.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// SaveActive saves css through the current session.
func (s *Service) SaveActive(ctx context.Context, css string) error {
	sess := s.Session()
	if sess == nil {
		return ErrNoSession
	}
	return sess.Save(ctx, css)
}

// ClearActive clears the current session's rule.
func (s *Service) ClearActive(ctx context.Context) error {
	sess := s.Session()
	if sess == nil {
		return ErrNoSession
	}
	return sess.Clear(ctx)
}

// CloseSession drops the current session, if any.
func (s *Service) CloseSession() {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
}

// Preview opens a fresh tab on url and applies the stored rule for its
// domain immediately, without waiting for the navigation watcher to notice
// the new target.
func (s *Service) Preview(ctx context.Context, url string) (browser.TabInfo, error) {
	key, err := s.keyFor(url)
	if err != nil {
		return browser.TabInfo{}, fmt.Errorf("customcss: preview: %w", err)
	}

	tab, err := s.driver.OpenTab(ctx, url)
	if err != nil {
		return browser.TabInfo{}, err
	}

	rule, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("customcss: preview rule lookup failed", "domain", key, "error", err)
		return tab, nil
	}
	if rule != nil {
		if err := s.ctrl.Inject(ctx, tab.ID, rule.CSS); err != nil {
			s.logger.Warn("customcss: preview inject failed", "domain", key, "error", err)
		}
	}
	return tab, nil
}

// ServiceStats aggregates the counters of the moving parts.
type ServiceStats struct {
	Rules    int              `json:"rules"`
	Nav      navwatch.Stats   `json:"nav"`
	DBWatch  store.WatchStats `json:"db_watch"`
	OpenTabs int              `json:"open_tabs"`
}

// Stats returns service statistics.
func (s *Service) Stats(ctx context.Context) (*ServiceStats, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	tabs, err := s.driver.List(ctx)
	if err != nil {
		s.logger.Warn("customcss: stats tab list failed", "error", err)
	}
	return &ServiceStats{
		Rules:    n,
		Nav:      s.nav.Stats(),
		DBWatch:  s.dbwatch.Stats(),
		OpenTabs: len(tabs),
	}, nil
}
