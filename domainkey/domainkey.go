// Package domainkey maps page URLs to the canonical keys that index style
// rules. A key is the lowercased hostname of an http(s) URL with any port
// stripped; two URLs that differ only in scheme, port, path, query or
// fragment share one key.
//
// Resolution is pure: no I/O, no state.
package domainkey

import (
	"errors"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ErrNoDomain is returned when a URL cannot yield a domain key: it fails to
// parse, has a non-http(s) scheme, or has no hostname.
var ErrNoDomain = errors.New("domainkey: no resolvable domain")

// Resolve returns the domain key for rawURL.
//
// Only http and https URLs resolve. Browser-internal pages (chrome://,
// about:, file:) and malformed strings return ErrNoDomain — callers treat
// those pages as inapplicable, never as an error condition.
func Resolve(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", ErrNoDomain
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return "", ErrNoDomain
	}
	host := u.Hostname() // already strips port and brackets
	if host == "" {
		return "", ErrNoDomain
	}
	return strings.ToLower(host), nil
}

// Registrable collapses a hostname to its registrable domain (eTLD+1), so
// "app.example.co.uk" and "www.example.co.uk" share the key "example.co.uk".
// Hosts that have no registrable form (IP literals, single labels like
// "localhost", the public suffixes themselves) are returned unchanged —
// grouping degrades to exact-host keys rather than failing.
func Registrable(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld1
}
