package identity

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Cookie is a single cookie bound to a domain, ready to be set on a
// browser context.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// ParseCookieHeader splits a "name=value; name2=value2" header into cookies
// bound to domain with path "/". Values keep any "=" after the first one.
// Fragments without "=" or with an empty name are skipped.
func ParseCookieHeader(header, domain string) []Cookie {
	var cookies []Cookie
	for part := range strings.SplitSeq(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cookies = append(cookies, Cookie{
			Name:   name,
			Value:  strings.TrimSpace(value),
			Domain: domain,
			Path:   "/",
		})
	}
	return cookies
}

// CookieDomain returns the registrable-domain cookie scope of rawURL, so
// that cookies set for m.place.naver.com reach every *.naver.com host
// the list page talks to ("https://m.place.naver.com" -> ".naver.com").
func CookieDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse %q: %w", rawURL, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("no host in %q", rawURL)
	}

	if net.ParseIP(host) != nil {
		return host, nil
	}

	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// single-label hosts such as localhost
		return host, nil //nolint:nilerr // host itself is the only usable scope
	}
	return "." + etld1, nil
}
