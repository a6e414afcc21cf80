// Package manager keeps the pools a client needs in step with the signed-in
// session: the user's own relays, the wallet relays and a fixed bootstrap
// set used before an account has any relays.
package manager

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/Hubmakerlabs/relaycore/pkg/context"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/pool"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/relay"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/session"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/socket"
	"github.com/Hubmakerlabs/relaycore/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
)

var log, chk = slog.New(os.Stderr)

const (
	Regular   = "regular"
	Wallet    = "wallet"
	Bootstrap = "bootstrap"
)

// DefaultBootstrap is used when no bootstrap relays are configured.
var DefaultBootstrap = relay.FromURLs(
	"wss://relay.primal.net",
	"wss://relay.damus.io",
	"wss://nos.lol",
)

// MissingRelaysError means a pool that must not fall back has no relays.
type MissingRelaysError struct {
	Pool string
}

func (e *MissingRelaysError) Error() string {
	return fmt.Sprintf("no %s relays configured", e.Pool)
}

type T struct {
	Regular   *pool.T
	Wallet    *pool.T
	Bootstrap *pool.T
	// mx serialises membership recomputation.
	mx      sync.Mutex
	session *session.T
}

// New creates the three pools. Only the bootstrap pool has members until a
// session is applied.
func New(bootstrap relay.List, opts ...socket.Option) (m *T) {
	if len(bootstrap) == 0 {
		bootstrap = DefaultBootstrap
	}
	m = &T{
		Regular:   pool.New(Regular, opts...),
		Wallet:    pool.New(Wallet, opts...),
		Bootstrap: pool.New(Bootstrap, opts...),
	}
	m.Bootstrap.ChangeRelays(bootstrap)
	return
}

// Apply recomputes pool membership for s, nil meaning signed out. Pools
// whose membership would not change are left alone.
func (m *T) Apply(s *session.T) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.session = s
	var regular, wallet relay.List
	if s != nil {
		regular, wallet = s.Relays.Dedup(), s.WalletRelays.Dedup()
		log.D.F("applying session %s: %d relays, %d wallet relays",
			s.Pubkey, len(regular), len(wallet))
	} else {
		log.D.Ln("no session, tearing down account pools")
	}
	update := func(p *pool.T, want relay.List) {
		if p.Relays().Equal(want) {
			return
		}
		p.ChangeRelays(want)
	}
	update(m.Regular, regular)
	update(m.Wallet, wallet)
}

// Session returns the session applied last.
func (m *T) Session() *session.T {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.session
}

// Observe applies every session src delivers until c is done or src closes
// the channel.
func (m *T) Observe(c context.T, src session.Source) {
	ch := src.Subscribe(c)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return
			}
			m.Apply(s)
		case <-c.Done():
			return
		}
	}
}

// Publish sends ev to the user's relays, or to the bootstrap relays while
// the user has no writable relay.
func (m *T) Publish(c context.T, ev *nostr.Event) (o pool.Outcome, err error) {
	// the pool picks its writable members from one snapshot, so an empty
	// pool is only known from its answer
	if o, err = m.Regular.Publish(c, ev); errors.Is(err, pool.ErrNoRelays) {
		log.D.F("no writable user relays, publishing %s to bootstrap relays", ev.ID)
		return m.Bootstrap.Publish(c, ev)
	}
	return
}

// PublishWallet sends ev to the wallet relays only.
func (m *T) PublishWallet(c context.T, ev *nostr.Event) (o pool.Outcome, err error) {
	if o, err = m.Wallet.Publish(c, ev); errors.Is(err, pool.ErrNoRelays) {
		return o, &MissingRelaysError{Pool: Wallet}
	}
	return
}

// Pools returns the pools by role.
func (m *T) Pools() map[string]*pool.T {
	return map[string]*pool.T{
		Regular:   m.Regular,
		Wallet:    m.Wallet,
		Bootstrap: m.Bootstrap,
	}
}

// Statuses returns each pool's member statuses by role.
func (m *T) Statuses() (st map[string][]pool.Status) {
	st = make(map[string][]pool.Status)
	for role, p := range m.Pools() {
		st[role] = p.Statuses()
	}
	return
}

// Close closes every pool.
func (m *T) Close() {
	m.mx.Lock()
	defer m.mx.Unlock()
	for _, p := range m.Pools() {
		p.Close()
	}
}

// Factory builds one process-wide T on first use and tears it down on
// Shutdown. A Get after Shutdown builds a new instance.
type Factory struct {
	mx    sync.Mutex
	build func() *T
	inst  *T
}

func NewFactory(build func() *T) *Factory { return &Factory{build: build} }

func (f *Factory) Get() *T {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.inst == nil {
		f.inst = f.build()
	}
	return f.inst
}

func (f *Factory) Shutdown() {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.inst != nil {
		f.inst.Close()
		f.inst = nil
	}
}
