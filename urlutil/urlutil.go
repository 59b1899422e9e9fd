// Package urlutil rewrites the path segment of base URLs.
package urlutil

import (
	"net/url"
	"strings"
)

// ReplacePath sets the path of rawURL to path. When overwrite is false the
// path is only set if rawURL has none ("" or "/"); an existing path is kept.
//
// The fragment is dropped so that a query appended to result reaches the
// server. ok is false when rawURL cannot be parsed or lacks a scheme or
// host, since no path can be attached to it in that case.
func ReplacePath(rawURL, path string, overwrite bool) (result string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", false
	}
	if u.Scheme == "" || u.Host == "" {
		return "", false
	}

	if overwrite || !HasPath(u) {
		u.Path = "/" + strings.TrimPrefix(path, "/")
		u.RawPath = ""
	}
	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), true
}

// HasPath reports whether u carries a path beyond the root.
func HasPath(u *url.URL) bool {
	return u.Path != "" && u.Path != "/"
}
