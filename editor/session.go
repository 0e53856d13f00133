// Package editor is the rule-authoring surface: one session per open popup,
// bound to the active tab and its domain for the session's whole lifetime.
//
// A session replaces the ambient tab/domain globals of a naive
// implementation with an explicit context object: it is created when the
// surface opens, carries {tab, domain} by value, and is discarded on close.
// Browsers single-instance the popup, so at most one session is meaningful
// at a time and no cross-session locking exists.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/RemmyNine/chrome-customCSS/domainkey"
	"github.com/RemmyNine/chrome-customCSS/idgen"
	"github.com/RemmyNine/chrome-customCSS/store"
)

// State of a session. A session leaves Uninitialized exactly once, during
// Open, and never transitions again.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateResolved      State = "resolved"
	StateInapplicable  State = "inapplicable"
)

// ErrInapplicable rejects save/clear on a session bound to a page that has
// no domain key (chrome://, about:, file:, ...).
var ErrInapplicable = errors.New("editor: page has no styleable domain")

// RuleStore is the slice of the style store the editor needs.
type RuleStore interface {
	Get(ctx context.Context, domain string) (*store.Rule, error)
	Set(ctx context.Context, domain, css string) error
	Remove(ctx context.Context, domain string) error
}

// Controller is the slice of the tab style controller the editor needs.
type Controller interface {
	Apply(ctx context.Context, tabID, css string) error
	RemoveLast(ctx context.Context, tabID, css string)
}

// ActiveTab identifies the tab the session binds to.
type ActiveTab struct {
	ID  string
	URL string
}

// TabQuerier resolves the currently active tab.
type TabQuerier interface {
	Active(ctx context.Context) (ActiveTab, error)
}

// Session is one editing session. Methods are not safe for concurrent use;
// the surface is single-threaded by construction (one popup, one user).
type Session struct {
	ID     string
	Tab    ActiveTab
	Domain string

	state  State
	input  string
	status *statusLine

	rules  RuleStore
	ctrl   Controller
	logger *slog.Logger
}

// Options configures Open.
type Options struct {
	// KeyFor maps a URL to its domain key. Default: domainkey.Resolve.
	// The service swaps in a registrable-domain resolver when subdomain
	// grouping is enabled.
	KeyFor func(rawURL string) (string, error)
	// StatusTTL is how long a status message stays visible. Default 3s.
	StatusTTL time.Duration
	Logger    *slog.Logger
}

// Open creates a session bound to the active tab. A tab without a domain key
// yields a session in StateInapplicable — that is a valid session whose
// operations all fail with ErrInapplicable, not an Open error. The stored
// rule for the domain, if any, is loaded into the input.
//
// Store failures during the initial load leave the input empty and set an
// error status; the session itself still opens (the user can retry by
// saving, and "unknown" must not masquerade as "absent" in the store).
func Open(ctx context.Context, tabs TabQuerier, rules RuleStore, ctrl Controller, opts Options) (*Session, error) {
	if opts.KeyFor == nil {
		opts.KeyFor = domainkey.Resolve
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	tab, err := tabs.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("editor: query active tab: %w", err)
	}

	s := &Session{
		ID:     sessionID(),
		Tab:    tab,
		state:  StateUninitialized,
		status: newStatusLine(opts.StatusTTL),
		rules:  rules,
		ctrl:   ctrl,
		logger: opts.Logger,
	}

	key, err := opts.KeyFor(tab.URL)
	if err != nil {
		s.state = StateInapplicable
		s.logger.Info("editor: inapplicable page", "url", tab.URL)
		return s, nil
	}
	s.Domain = key
	s.state = StateResolved

	rule, err := rules.Get(ctx, key)
	if err != nil {
		s.logger.Warn("editor: initial rule load failed", "domain", key, "error", err)
		s.status.setError("could not load saved style")
		return s, nil
	}
	if rule != nil {
		s.input = rule.CSS
	}
	return s, nil
}

var sessionID = idgen.Prefixed("sess_", idgen.UUIDv7())

// State returns the session state.
func (s *Session) State() State { return s.state }

// Input returns the CSS text currently held by the surface.
func (s *Session) Input() string { return s.input }

// SetInput updates the held CSS text without persisting anything.
func (s *Session) SetInput(css string) { s.input = css }

// Status returns the current transient status line, if still visible.
func (s *Session) Status() (Status, bool) { return s.status.get() }

// Save persists the input for the session's domain and applies it to the
// bound tab. The input is trimmed first; saving an emptied input is an
// implicit Clear. Store failure surfaces as an error status and skips
// injection entirely. Injection races (tab closed, page restricted) are
// swallowed below this layer; only real injection failures reach the status.
func (s *Session) Save(ctx context.Context, css string) error {
	if s.state != StateResolved {
		return ErrInapplicable
	}

	// Clear reads the held input for its best-effort removal, so it must
	// still see the prior text on the implicit-clear path.
	css = strings.TrimSpace(css)
	if css == "" {
		return s.Clear(ctx)
	}
	s.input = css

	if err := s.rules.Set(ctx, s.Domain, css); err != nil {
		s.logger.Error("editor: save failed", "domain", s.Domain, "error", err)
		s.status.setError("could not save style")
		return err
	}

	if err := s.ctrl.Apply(ctx, s.Tab.ID, css); err != nil {
		s.logger.Error("editor: apply failed", "domain", s.Domain, "tab", s.Tab.ID, "error", err)
		s.status.setError("saved, but could not apply to this tab")
		return err
	}

	s.status.setInfo("style saved")
	return nil
}

// Clear deletes the domain's rule and empties the input. The live tab keeps
// whatever is injected until its next navigation; a best-effort remove of
// the text the surface last held is attempted, and its outcome never affects
// the reported result (removal is cleanup, not correctness).
func (s *Session) Clear(ctx context.Context) error {
	if s.state != StateResolved {
		return ErrInapplicable
	}

	last := s.input
	if err := s.rules.Remove(ctx, s.Domain); err != nil {
		s.logger.Error("editor: clear failed", "domain", s.Domain, "error", err)
		s.status.setError("could not clear style")
		return err
	}

	s.input = ""
	s.ctrl.RemoveLast(ctx, s.Tab.ID, last)

	s.status.setInfo("style cleared")
	return nil
}
