// Package pool holds the sockets to a set of relays and publishes events to
// all of them at once, succeeding as soon as one relay accepts.
package pool

import (
	"fmt"
	"os"
	"sync"

	"github.com/Hubmakerlabs/relaycore/pkg/context"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/correlation"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/query"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/relay"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/socket"
	"github.com/Hubmakerlabs/relaycore/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v2"
	"go.uber.org/multierr"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var log, chk = slog.New(os.Stderr)

// WatchBuffer is the capacity of a Watch channel. Status changes that do not
// fit are dropped for that watcher.
const WatchBuffer = 64

// Status is the connection state of one member relay.
type Status struct {
	URL       string `json:"url"`
	Connected bool   `json:"connected"`
}

type member struct {
	relay  relay.T
	client *query.Client
}

type T struct {
	name     string
	opts     []socket.Option
	mx       sync.Mutex
	relays   relay.List
	members  map[string]*member
	statuses *xsync.MapOf[string, bool]
	watchMx  sync.Mutex
	watchers map[chan Status]struct{}
}

// New returns an empty pool. The socket options apply to every member
// socket; the pool adds its own status handler.
func New(name string, opts ...socket.Option) *T {
	return &T{
		name:     name,
		opts:     opts,
		members:  make(map[string]*member),
		statuses: xsync.NewMapOf[bool](),
		watchers: make(map[chan Status]struct{}),
	}
}

func (p *T) Name() string { return p.name }

// Relays returns the current membership.
func (p *T) Relays() relay.List {
	p.mx.Lock()
	defer p.mx.Unlock()
	return slices.Clone(p.relays)
}

func (p *T) Len() int {
	p.mx.Lock()
	defer p.mx.Unlock()
	return len(p.relays)
}

// Client returns the query client of a member relay.
func (p *T) Client(url string) (cl *query.Client, ok bool) {
	p.mx.Lock()
	defer p.mx.Unlock()
	var m *member
	if m, ok = p.members[relay.NormalizeURL(url)]; ok {
		cl = m.client
	}
	return
}

func (p *T) snapshot() (ms []*member) {
	p.mx.Lock()
	defer p.mx.Unlock()
	ms = make([]*member, 0, len(p.relays))
	for _, r := range p.relays {
		ms = append(ms, p.members[r.URL])
	}
	return
}

// ChangeRelays replaces the membership. Sockets of relays that stay are
// kept, sockets of dropped relays are closed, and new relays are dialled on
// first use.
func (p *T) ChangeRelays(next relay.List) {
	next = next.Dedup()
	p.mx.Lock()
	members := make(map[string]*member, len(next))
	for _, r := range next {
		if m, ok := p.members[r.URL]; ok {
			m.relay = r
			members[r.URL] = m
			continue
		}
		members[r.URL] = &member{relay: r, client: query.New(p.socket(r.URL))}
	}
	var dropped []*member
	for u, m := range p.members {
		if _, ok := members[u]; !ok {
			dropped = append(dropped, m)
		}
	}
	added, removed := p.relays.Diff(next)
	p.relays, p.members = next, members
	for _, u := range added {
		p.statuses.Store(u, false)
	}
	p.mx.Unlock()
	if len(added) > 0 || len(removed) > 0 {
		log.I.F("[%s] relays changed: +%v -%v", p.name, added, removed)
	}
	for _, m := range dropped {
		m.client.Close()
		p.statuses.Delete(m.relay.URL)
	}
}

func (p *T) socket(url string) *socket.T {
	opts := append(slices.Clone(p.opts), socket.WithStatusHandler(p.onStatus))
	return socket.New(url, opts...)
}

// Close closes every member socket and empties the pool.
func (p *T) Close() {
	p.mx.Lock()
	members := p.members
	p.relays, p.members = nil, make(map[string]*member)
	p.mx.Unlock()
	for u, m := range members {
		m.client.Close()
		p.statuses.Delete(u)
	}
}

// EnsureAllConnected dials every member that is not connected. It waits for
// all of them and returns the combined failures.
func (p *T) EnsureAllConnected(c context.T) (err error) {
	ms := p.snapshot()
	errs := make(chan error, len(ms))
	for _, m := range ms {
		go func(m *member) { errs <- m.client.Socket().EnsureConnected(c) }(m)
	}
	for range ms {
		err = multierr.Append(err, <-errs)
	}
	return
}

// Publish sends ev to every writable member and returns the first successful outcome,
// cancelling the attempts still in flight. When every member fails the
// error is a PublishError with all outcomes.
func (p *T) Publish(c context.T, ev *nostr.Event) (o Outcome, err error) {
	var ms []*member
	for _, m := range p.snapshot() {
		if m.relay.Write {
			ms = append(ms, m)
		}
	}
	if len(ms) == 0 {
		return o, &PublishError{EventID: ev.ID, Err: ErrNoRelays}
	}
	c, cancel := context.Cancel(c)
	defer cancel()
	results := make(chan Outcome, len(ms))
	for _, m := range ms {
		go func(m *member) {
			ok, err := m.client.Publish(c, ev)
			results <- Outcome{URL: m.relay.URL, OK: ok, Err: err}
		}(m)
	}
	pe := &PublishError{EventID: ev.ID}
	for range ms {
		o = <-results
		if o.Err == nil {
			log.D.F("[%s] event %s accepted by %s", p.name, ev.ID, o.URL)
			return o, nil
		}
		log.D.F("[%s] event %s failed on %s: %v", p.name, ev.ID, o.URL, o.Err)
		pe.Outcomes = append(pe.Outcomes, o)
		pe.Err = multierr.Append(pe.Err, fmt.Errorf("%s: %w", o.URL, o.Err))
	}
	return Outcome{}, pe
}

// Query sends the same request to every readable member and merges the
// events, dropping duplicates. Relays that fail are logged and skipped; an
// error is returned only when all of them fail.
func (p *T) Query(c context.T, payload any) (evs []*nostr.Event, err error) {
	var ms []*member
	for _, m := range p.snapshot() {
		if m.relay.Read {
			ms = append(ms, m)
		}
	}
	if len(ms) == 0 {
		return nil, ErrNoRelays
	}
	type answer struct {
		url string
		res *query.Result
		err error
	}
	answers := make(chan answer, len(ms))
	for _, m := range ms {
		go func(m *member) {
			res, err := m.client.Query(c, correlation.NewLabelled("pool"), payload)
			answers <- answer{m.relay.URL, res, err}
		}(m)
	}
	seen := make(map[string]struct{})
	var failed int
	for range ms {
		a := <-answers
		if a.err != nil {
			log.D.F("[%s] query on %s: %v", p.name, a.url, a.err)
			err = multierr.Append(err, fmt.Errorf("%s: %w", a.url, a.err))
			failed++
			continue
		}
		for _, ev := range a.res.Nostr {
			if _, dup := seen[ev.ID]; !dup {
				seen[ev.ID] = struct{}{}
				evs = append(evs, ev)
			}
		}
	}
	if failed < len(ms) {
		err = nil
	}
	return
}

func (p *T) onStatus(url string, connected bool) {
	p.mx.Lock()
	if _, ok := p.members[url]; !ok {
		p.mx.Unlock()
		return
	}
	p.statuses.Store(url, connected)
	p.mx.Unlock()
	s := Status{URL: url, Connected: connected}
	p.watchMx.Lock()
	defer p.watchMx.Unlock()
	for ch := range p.watchers {
		select {
		case ch <- s:
		default:
			log.W.F("[%s] status watcher is full, dropped %+v", p.name, s)
		}
	}
}

// Statuses returns the last known state of every member, sorted by URL.
func (p *T) Statuses() (st []Status) {
	m := make(map[string]bool)
	p.statuses.Range(func(u string, connected bool) bool {
		m[u] = connected
		return true
	})
	urls := maps.Keys(m)
	slices.Sort(urls)
	for _, u := range urls {
		st = append(st, Status{URL: u, Connected: m[u]})
	}
	return
}

// Watch streams status changes until c is done.
func (p *T) Watch(c context.T) <-chan Status {
	ch := make(chan Status, WatchBuffer)
	p.watchMx.Lock()
	p.watchers[ch] = struct{}{}
	p.watchMx.Unlock()
	go func() {
		<-c.Done()
		p.watchMx.Lock()
		delete(p.watchers, ch)
		p.watchMx.Unlock()
	}()
	return ch
}
