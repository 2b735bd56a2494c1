// Package guard validates caller-supplied target URLs before any upstream
// request is made.
package guard

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/leca/cover-proxy/internal/api"
)

// ParseTarget parses raw and requires an http(s) URL with a host.
func ParseTarget(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, api.Invalid("missing url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, api.Invalid("invalid url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, api.Invalid("invalid url")
	}
	if u.Hostname() == "" {
		return nil, api.Invalid("invalid url")
	}
	return u, nil
}

// Allowlist is a fixed set of hostnames the relay may reach.
type Allowlist struct {
	hosts map[string]struct{}
}

// NewAllowlist builds an Allowlist. Hostnames are matched case-insensitively.
func NewAllowlist(hosts []string) *Allowlist {
	a := &Allowlist{hosts: make(map[string]struct{}, len(hosts))}
	for _, h := range hosts {
		a.hosts[strings.ToLower(h)] = struct{}{}
	}
	return a
}

// Allowed reports whether u's hostname is an exact member of the list.
func (a *Allowlist) Allowed(u *url.URL) bool {
	_, ok := a.hosts[strings.ToLower(u.Hostname())]
	return ok
}

// Check returns an ErrForbidden error unless u is allowed.
func (a *Allowlist) Check(u *url.URL) error {
	if !a.Allowed(u) {
		return fmt.Errorf("host %q not allowed: %w", u.Hostname(), api.ErrForbidden)
	}
	return nil
}

// RefererPolicy decides which targets get the spoofed media Referer.
type RefererPolicy struct {
	Referer string
	Domains []string
}

// RefererFor returns the Referer to send to u, or "" when u is not a known
// media host. A host matches a domain exactly or as a subdomain.
func (p RefererPolicy) RefererFor(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	for _, d := range p.Domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return p.Referer
		}
	}
	return ""
}
