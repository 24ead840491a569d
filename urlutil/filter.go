package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// HostMatches reports whether host is domain itself or one of its
// subdomains. Both sides are compared case-insensitively and a trailing
// root dot is ignored, so "Blog.Example.com." matches "example.com".
func HostMatches(host, domain string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	if host == "" || domain == "" {
		return false
	}
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, domain) && host[len(host)-len(domain)-1] == '.'
}

// InDomains reports whether the host of targetURL matches any of domains.
// An empty domain list allows nothing.
func InDomains(targetURL string, domains []string) bool {
	host := Hostname(targetURL)
	if host == "" {
		return false
	}
	for _, domain := range domains {
		if HostMatches(host, domain) {
			return true
		}
	}
	return false
}

// Hostname returns the lowercased host of rawURL without its port, or the
// empty string if rawURL does not parse.
func Hostname(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// IsHTTPScheme reports whether rawURL parses and uses http or https.
func IsHTTPScheme(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}

// ResolveReference resolves ref against base the way a browser resolves an
// href or a Location header. Surrounding whitespace in ref is ignored.
func ResolveReference(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base URL %q: %w", base, err)
	}
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse reference %q: %w", ref, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
