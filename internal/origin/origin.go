// Package origin validates browser Origin headers against the broker's
// allowed-origin configuration.
package origin

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Normalize validates a browser Origin header and returns it in canonical
// scheme://host[:port] form, with default ports stripped. The special value
// "null" is passed through.
func Normalize(originHeader string) (normalized string, host string, ok bool) {
	trimmed := strings.TrimSpace(originHeader)
	if trimmed == "" {
		return "", "", false
	}
	if trimmed == "null" {
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host, ok = canonicalHost(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// IsAllowed reports whether the normalized origin may access the request
// host. A non-empty allowlist matches entries exactly ("*" matches any);
// an empty allowlist falls back to same-host.
//
// Scheme is deliberately not compared for the same-host fallback: behind a
// TLS-terminating proxy the broker sees http while the browser Origin is
// https.
func IsAllowed(normalizedOrigin, originHost, requestHost string, allowedOrigins []string) bool {
	if len(allowedOrigins) > 0 {
		for _, allowed := range allowedOrigins {
			if allowed == "*" || allowed == normalizedOrigin {
				return true
			}
		}
		return false
	}

	var scheme string
	switch {
	case strings.HasPrefix(normalizedOrigin, "http://"):
		scheme = "http"
	case strings.HasPrefix(normalizedOrigin, "https://"):
		scheme = "https"
	default:
		// "null" and anything unnormalized can never be same-host.
		return false
	}

	reqHost, ok := canonicalHost(strings.ToLower(strings.TrimSpace(requestHost)), scheme)
	if !ok {
		return false
	}
	return originHost == reqHost
}

// canonicalHost lowercases the hostname, brackets IPv6 literals, and strips
// the scheme's default port.
func canonicalHost(rawHost, scheme string) (string, bool) {
	if rawHost == "" {
		return "", false
	}

	hostname := rawHost
	portStr := ""
	if h, p, err := net.SplitHostPort(rawHost); err == nil {
		hostname, portStr = h, p
	} else {
		hostname = strings.TrimSuffix(strings.TrimPrefix(rawHost, "["), "]")
	}

	hostname = strings.ToLower(hostname)
	if hostname == "" {
		return "", false
	}
	// Reject unbracketed IPv6 authority forms that SplitHostPort let through.
	if strings.Contains(hostname, ":") && !strings.HasPrefix(rawHost, "[") {
		return "", false
	}

	var port uint64
	if portStr != "" {
		n, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host += ":" + strconv.FormatUint(port, 10)
	}
	return host, true
}
