package crawler

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// NormalizedURL is a URL in canonical form: lower-case scheme and host, default
// port removed, fragment and userinfo dropped, empty path replaced by "/", and
// raw query segments sorted. Equal strings mean equal pages.
type NormalizedURL string

func (u NormalizedURL) String() string {
	return string(u)
}

// Normalize resolves rawLink against base and canonicalizes the result. An
// empty base requires rawLink to be absolute. Anything that is not an http(s)
// URL with a host yields ErrInvalidURL.
func Normalize(base NormalizedURL, rawLink string) (NormalizedURL, error) {
	raw := strings.TrimSpace(rawLink)
	if raw == "" {
		return "", fmt.Errorf("%w: empty link", ErrInvalidURL)
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if base != "" {
		baseURL, err := url.Parse(string(base))
		if err != nil {
			return "", fmt.Errorf("%w: base %q: %v", ErrInvalidURL, base, err)
		}
		ref = baseURL.ResolveReference(ref)
	}
	return canonicalize(ref)
}

func canonicalize(u *url.URL) (NormalizedURL, error) {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Opaque != "" {
		return "", fmt.Errorf("%w: opaque url %q", ErrInvalidURL, u.String())
	}
	host, err := canonicalHost(u.Hostname())
	if err != nil {
		return "", err
	}
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	switch {
	case port != "":
		host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		host = "[" + host + "]"
	}

	out := &url.URL{
		Scheme:  scheme,
		Host:    host,
		Path:    u.Path,
		RawPath: u.RawPath,
	}
	if out.Path == "" {
		out.Path = "/"
		out.RawPath = ""
	}
	out.RawQuery = sortQuery(u.RawQuery)
	return NormalizedURL(out.String()), nil
}

// sortQuery orders the "&"-separated segments of a raw query. Segments are
// never decoded, so the server receives exactly the pairs the link carried.
// Bytes that cannot appear in a request line are percent-encoded the way a
// browser would before sending the link.
func sortQuery(raw string) string {
	raw = escapeQueryBytes(raw)
	if !strings.Contains(raw, "&") {
		return raw
	}
	segments := strings.Split(raw, "&")
	slices.Sort(segments)
	return strings.Join(segments, "&")
}

func escapeQueryBytes(raw string) string {
	const hex = "0123456789ABCDEF"
	var (
		b       strings.Builder
		escaped bool
	)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c > ' ' && c < utf8.RuneSelf && strings.IndexByte("\"<>\\^`{|}", c) < 0 {
			if escaped {
				b.WriteByte(c)
			}
			continue
		}
		if !escaped {
			escaped = true
			b.Grow(len(raw) + 8)
			b.WriteString(raw[:i])
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	if !escaped {
		return raw
	}
	return b.String()
}

func canonicalHost(hostname string) (string, error) {
	if hostname == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	host := strings.ToLower(hostname)
	if !isASCII(host) {
		ascii, err := idna.ToASCII(host)
		if err != nil {
			return "", fmt.Errorf("%w: host %q: %v", ErrInvalidURL, hostname, err)
		}
		host = ascii
	}
	if len(host) > 255 {
		return "", fmt.Errorf("%w: host too long", ErrInvalidURL)
	}
	return host, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// OriginPolicy decides which URLs belong to the crawl's origin. Scheme and host
// always have to match; the port only when ComparePort is set.
type OriginPolicy struct {
	ComparePort bool
}

// SameOrigin reports whether a and b share an origin under the policy.
// Unparseable input is never same-origin.
func (p OriginPolicy) SameOrigin(a, b NormalizedURL) bool {
	ua, err := url.Parse(string(a))
	if err != nil {
		return false
	}
	ub, err := url.Parse(string(b))
	if err != nil {
		return false
	}
	if ua.Hostname() == "" || !strings.EqualFold(ua.Scheme, ub.Scheme) {
		return false
	}
	if !strings.EqualFold(ua.Hostname(), ub.Hostname()) {
		return false
	}
	if p.ComparePort {
		return ua.Port() == ub.Port()
	}
	return true
}
