package relay

import (
	"golang.org/x/exp/slices"
)

// List is an ordered relay set. Entries with an empty or repeated URL are
// dropped by Dedup.
type List []T

// FromURLs builds a read/write list from plain URLs.
func FromURLs(urls ...string) (l List) {
	for _, u := range urls {
		l = append(l, ReadWrite(u))
	}
	return l.Dedup()
}

// Dedup returns l without invalid or repeated URLs, keeping the first
// occurrence.
func (l List) Dedup() (out List) {
	seen := make(map[string]struct{}, len(l))
	for _, r := range l {
		if r.URL == "" {
			continue
		}
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		out = append(out, r)
	}
	return
}

// URLs returns the relay URLs in list order.
func (l List) URLs() (urls []string) {
	for _, r := range l {
		urls = append(urls, r.URL)
	}
	return
}

// Writable returns the relays that accept publishing.
func (l List) Writable() (out List) {
	for _, r := range l {
		if r.Write {
			out = append(out, r)
		}
	}
	return
}

// Readable returns the relays that serve queries.
func (l List) Readable() (out List) {
	for _, r := range l {
		if r.Read {
			out = append(out, r)
		}
	}
	return
}

// Contains reports whether a relay with the given normalized URL is present.
func (l List) Contains(u string) bool {
	return slices.ContainsFunc(l, func(r T) bool { return r.URL == u })
}

// Equal reports whether l and o hold the same relays with the same
// permissions, ignoring order.
func (l List) Equal(o List) bool {
	if len(l) != len(o) {
		return false
	}
	a, b := slices.Clone(l), slices.Clone(o)
	byURL := func(x, y T) int {
		switch {
		case x.URL < y.URL:
			return -1
		case x.URL > y.URL:
			return 1
		}
		return 0
	}
	slices.SortFunc(a, byURL)
	slices.SortFunc(b, byURL)
	return slices.Equal(a, b)
}

// Diff returns the URLs present in next but not in l (added) and those in l
// but not in next (removed).
func (l List) Diff(next List) (added, removed []string) {
	for _, r := range next {
		if !l.Contains(r.URL) {
			added = append(added, r.URL)
		}
	}
	for _, r := range l {
		if !next.Contains(r.URL) {
			removed = append(removed, r.URL)
		}
	}
	return
}
