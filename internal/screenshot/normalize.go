package screenshot

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"sort"
	"strings"
)

// ValidateURL checks that raw is an absolute http or https URL with a host and
// returns it without surrounding whitespace.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("url is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("could not parse URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", errors.New("url has no host")
	}

	return raw, nil
}

// NormalizeURL returns a canonical, normalized representation of a URL string
// used to fingerprint captures, so trivially different spellings of the same
// page share a cache entry:
//   - Lower-case the scheme and host
//   - Ensure path is present; empty path becomes "/"
//   - Clean the path (resolve dot-segments, collapse duplicate slashes)
//   - Remove a trailing slash (except for the root path "/")
//   - Drop default ports (http:80, https:443), keep non-default ports
//   - Sort query parameters by key and by value for stable ordering
//   - Keep the fragment; hash-routed pages render differently per fragment
//
// If the input cannot be parsed as a URL, an error is returned.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("could not parse URL: %w", err)
	}

	// lowercase scheme
	u.Scheme = strings.ToLower(u.Scheme)

	// if no path, make it "/"
	if u.Path == "" {
		u.Path = "/"
	}

	// clean path (removes dot-segments, duplicate slashes)
	cleaned := path.Clean(u.Path)

	// keep a leading slash for absolute URLs
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	u.Path = cleaned

	// remove trailing slash (but not for root)
	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
	}

	// lowercase host and drop default ports
	host := strings.ToLower(u.Host)
	port := ""
	if ph, pp, err := net.SplitHostPort(host); err == nil {
		host, port = ph, pp
	} // else: might be a host without explicit port or IPv6 without port
	// remove default ports for common schemes
	if port != "" {
		if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
			u.Host = host
			// SplitHostPort strips the brackets of an IPv6 literal
			if strings.Contains(host, ":") {
				u.Host = "[" + host + "]"
			}
		} else {
			u.Host = net.JoinHostPort(host, port)
		}
	} else {
		u.Host = host
	}

	// sort query params (keys and values)
	if u.RawQuery != "" {
		q := u.Query()
		// sort each value slice
		for k := range q {
			sort.Strings(q[k])
		}
		// url.Values.Encode() sorts keys lexicographically
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}
