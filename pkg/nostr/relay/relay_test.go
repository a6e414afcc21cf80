package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL(t *testing.T) {
	for in, want := range map[string]string{
		"":                  "",
		"wss://x.com/y":     "wss://x.com/y",
		"wss://x.com/y/":    "wss://x.com/y",
		"http://x.com/y":    "ws://x.com/y",
		"https://X.com/":    "wss://x.com",
		"x.com":             "wss://x.com",
		"x.com////":         "wss://x.com",
		"x.com/?x=23":       "wss://x.com?x=23",
		" ws://127.0.0.1:7": "ws://127.0.0.1:7",
	} {
		assert.Equal(t, want, NormalizeURL(in), in)
		assert.Equal(t, want, NormalizeURL(NormalizeURL(in)), "idempotent for %q", in)
	}
}

func TestListEqualIgnoresOrder(t *testing.T) {
	a := List{ReadWrite("a.com"), New("b.com", true, false)}
	b := List{New("b.com", true, false), ReadWrite("a.com")}
	assert.True(t, a.Equal(b))
	c := List{New("b.com", true, true), ReadWrite("a.com")}
	assert.False(t, a.Equal(c), "permission change is a difference")
	assert.False(t, a.Equal(a[:1]))
	assert.True(t, List(nil).Equal(List{}))
}

func TestListDiff(t *testing.T) {
	old := FromURLs("a.com", "b.com")
	next := FromURLs("b.com", "c.com", "c.com")
	added, removed := old.Diff(next)
	assert.Equal(t, []string{"wss://c.com"}, added)
	assert.Equal(t, []string{"wss://a.com"}, removed)
}

func TestListFilters(t *testing.T) {
	l := List{New("r.com", true, false), New("w.com", false, true), {URL: ""}}
	assert.Equal(t, []string{"wss://w.com"}, l.Writable().URLs())
	assert.Equal(t, []string{"wss://r.com"}, l.Readable().URLs())
	assert.Len(t, l.Dedup(), 2)
}
