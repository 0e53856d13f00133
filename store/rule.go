package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Rule is one persisted style rule: CSS text keyed by domain.
type Rule struct {
	Domain    string `json:"domain"`
	CSS       string `json:"css"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Get returns the rule for domain, or nil if none exists.
func (s *Store) Get(ctx context.Context, domain string) (*Rule, error) {
	r := &Rule{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT domain, css, created_at, updated_at
		FROM style_rules WHERE domain = ?`, domain).Scan(
		&r.Domain, &r.CSS, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrUnavailable, domain, err)
	}
	return r, nil
}

// Set stores css for domain, overwriting any existing rule unconditionally.
// An empty css (after trimming) is an implicit Remove: the store never holds
// empty rules, so "saved nothing" and "no rule" stay indistinguishable.
func (s *Store) Set(ctx context.Context, domain, css string) error {
	if strings.TrimSpace(css) == "" {
		return s.Remove(ctx, domain)
	}

	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO style_rules (domain, css, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET css = excluded.css, updated_at = excluded.updated_at`,
		domain, css, now, now,
	)
	if err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, domain, err)
	}
	return nil
}

// Remove deletes the rule for domain. Removing an absent key is a no-op,
// not an error.
func (s *Store) Remove(ctx context.Context, domain string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM style_rules WHERE domain = ?`, domain)
	if err != nil {
		return fmt.Errorf("%w: remove %s: %v", ErrUnavailable, domain, err)
	}
	return nil
}

// GetBatch returns the rules for the given domains, keyed by domain.
// Domains with no rule are simply missing from the result.
func (s *Store) GetBatch(ctx context.Context, domains []string) (map[string]*Rule, error) {
	out := make(map[string]*Rule, len(domains))
	if len(domains) == 0 {
		return out, nil
	}

	placeholders := strings.Repeat("?,", len(domains))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(domains))
	for i, d := range domains {
		args[i] = d
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT domain, css, created_at, updated_at
		FROM style_rules WHERE domain IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: get batch: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		r := &Rule{}
		if err := rows.Scan(&r.Domain, &r.CSS, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: get batch scan: %v", ErrUnavailable, err)
		}
		out[r.Domain] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: get batch: %v", ErrUnavailable, err)
	}
	return out, nil
}

// List returns all rules ordered by domain.
func (s *Store) List(ctx context.Context) ([]*Rule, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT domain, css, created_at, updated_at
		FROM style_rules ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		r := &Rule{}
		if err := rows.Scan(&r.Domain, &r.CSS, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: list scan: %v", ErrUnavailable, err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrUnavailable, err)
	}
	return rules, nil
}

// Count returns the number of stored rules.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM style_rules`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrUnavailable, err)
	}
	return n, nil
}
