package domainkey

import (
	"errors"
	"testing"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		name string
		url  string
		want string
	}{
		{"plain", "https://example.com", "example.com"},
		{"port stripped", "https://example.com:8443/path", "example.com"},
		{"path and query stripped", "http://example.com/a/b?q=1#frag", "example.com"},
		{"scheme irrelevant", "http://example.com", "example.com"},
		{"subdomain kept", "https://news.ycombinator.com/item?id=1", "news.ycombinator.com"},
		{"uppercase host lowered", "https://EXAMPLE.COM/Path", "example.com"},
		{"ipv4 host", "http://127.0.0.1:8080/", "127.0.0.1"},
		{"ipv6 brackets stripped", "http://[::1]:9222/json", "::1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(tc.url)
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tc.url, err)
			}
			if got != tc.want {
				t.Errorf("Resolve(%q) = %q, want %q", tc.url, got, tc.want)
			}
		})
	}
}

func TestResolve_NoDomain(t *testing.T) {
	cases := []struct {
		name string
		url  string
	}{
		{"chrome internal", "chrome://extensions"},
		{"about page", "about:blank"},
		{"file url", "file:///tmp/test.html"},
		{"extension page", "chrome-extension://abcdef/popup.html"},
		{"empty", ""},
		{"garbage", "::not a url::"},
		{"scheme only", "https://"},
		{"relative", "/just/a/path"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Resolve(tc.url); !errors.Is(err, ErrNoDomain) {
				t.Errorf("Resolve(%q) err = %v, want ErrNoDomain", tc.url, err)
			}
		})
	}
}

func TestRegistrable(t *testing.T) {
	cases := []struct {
		host string
		want string
	}{
		{"www.example.com", "example.com"},
		{"example.com", "example.com"},
		{"app.example.co.uk", "example.co.uk"},
		{"deep.sub.example.org", "example.org"},
		// No registrable form: returned unchanged.
		{"localhost", "localhost"},
		{"127.0.0.1", "127.0.0.1"},
	}
	for _, tc := range cases {
		if got := Registrable(tc.host); got != tc.want {
			t.Errorf("Registrable(%q) = %q, want %q", tc.host, got, tc.want)
		}
	}
}
