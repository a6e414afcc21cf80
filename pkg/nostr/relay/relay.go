// Package relay holds the immutable description of a relay server and the
// list operations used when a pool's membership is recomputed.
package relay

import (
	"net/url"
	"strings"
)

// T is one relay endpoint with the access a user has configured for it.
// Identity is the normalized URL.
type T struct {
	URL   string `json:"url"`
	Read  bool   `json:"read"`
	Write bool   `json:"write"`
}

// New returns a relay with a normalized URL. An empty URL means the input
// could not be parsed.
func New(u string, read, write bool) T {
	return T{URL: NormalizeURL(u), Read: read, Write: write}
}

// ReadWrite is New with both permissions set, the common case for bootstrap
// lists.
func ReadWrite(u string) T { return New(u, true, true) }

func (r T) String() string { return r.URL }

// NormalizeURL lowercases u, assumes wss:// when no scheme is given, maps
// http(s) onto ws(s) and drops trailing path slashes.
func NormalizeURL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	if u == "" {
		return ""
	}
	if !(strings.HasPrefix(u, "http://") ||
		strings.HasPrefix(u, "https://") ||
		strings.HasPrefix(u, "ws://") ||
		strings.HasPrefix(u, "wss://")) {
		u = "wss://" + u
	}
	p, err := url.Parse(u)
	if err != nil || p.Host == "" {
		return ""
	}
	switch p.Scheme {
	case "https":
		p.Scheme = "wss"
	case "http":
		p.Scheme = "ws"
	}
	p.Path = strings.TrimRight(p.Path, "/")
	return p.String()
}
