// Package policy decides which remote URLs are trusted and which uploads are accepted.
package policy

import (
	"net"
	"net/url"
	"strings"

	"refile-go/internal/refile"
)

// DefaultTrustedHosts is the allow-list used when none is configured.
var DefaultTrustedHosts = []string{
	"files.catbox.moe",
	"litter.catbox.moe",
	"pixeldrain.com",
	"localhost",
	"127.0.0.1",
}

// loopbackHosts may be reached over plain http.
var loopbackHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

// HostTrustPolicy trusts a URL when its host is on the allow-list and it uses
// https, or http for loopback hosts.
type HostTrustPolicy struct {
	hosts map[string]bool
}

// NewHostTrustPolicy builds a policy from hosts, or DefaultTrustedHosts when empty.
// Extra hosts are added on top, e.g. the server's own public host.
func NewHostTrustPolicy(hosts []string, extra ...string) *HostTrustPolicy {
	if len(hosts) == 0 {
		hosts = DefaultTrustedHosts
	}
	p := &HostTrustPolicy{hosts: make(map[string]bool, len(hosts)+len(extra))}
	for _, h := range append(append([]string{}, hosts...), extra...) {
		if h = normalizeHost(h); h != "" {
			p.hosts[h] = true
		}
	}
	return p
}

// IsTrustedURL never errors: anything unparsable is untrusted.
func (p *HostTrustPolicy) IsTrustedURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := normalizeHost(u.Hostname())
	if !p.hosts[host] {
		return false
	}

	switch strings.ToLower(u.Scheme) {
	case "https":
		return true
	case "http":
		return loopbackHosts[host]
	default:
		return false
	}
}

// Hosts returns the allow-list, for diagnostics.
func (p *HostTrustPolicy) Hosts() []string {
	out := make([]string, 0, len(p.hosts))
	for h := range p.hosts {
		out = append(out, h)
	}
	return out
}

// HostOf extracts the host of a URL, or "" if it has none.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return normalizeHost(u.Hostname())
}

func normalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimSuffix(strings.TrimPrefix(h, "["), "]")
	if ip := net.ParseIP(h); ip != nil {
		return ip.String()
	}
	return h
}

var _ refile.TrustPolicy = (*HostTrustPolicy)(nil)
