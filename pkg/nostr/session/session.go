// Package session describes the signed-in account as far as relay
// selection cares, and carries changes of it to observers.
package session

import (
	"sync"

	"github.com/Hubmakerlabs/relaycore/pkg/context"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/relay"
)

// T is an active session. A nil *T means nobody is signed in.
type T struct {
	Pubkey       string     `json:"pubkey"`
	Relays       relay.List `json:"relays"`
	WalletRelays relay.List `json:"wallet_relays,omitempty"`
}

// Source delivers the current session and every later change. Receivers
// only need the latest value; intermediate ones may be skipped.
type Source interface {
	Subscribe(c context.T) <-chan *T
}

// Bus is an in-memory Source.
type Bus struct {
	mx   sync.Mutex
	cur  *T
	set  bool
	subs map[chan *T]struct{}
}

func NewBus() *Bus { return &Bus{subs: make(map[chan *T]struct{})} }

// Set publishes s, nil for signed out.
func (b *Bus) Set(s *T) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.cur, b.set = s, true
	for ch := range b.subs {
		offer(ch, s)
	}
}

// Current returns the last value set.
func (b *Bus) Current() *T {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.cur
}

// Subscribe returns a channel that first holds the current session, if one
// was ever set, and then each change. It is closed when c is done.
func (b *Bus) Subscribe(c context.T) <-chan *T {
	ch := make(chan *T, 1)
	b.mx.Lock()
	if b.set {
		ch <- b.cur
	}
	b.subs[ch] = struct{}{}
	b.mx.Unlock()
	go func() {
		<-c.Done()
		b.mx.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mx.Unlock()
	}()
	return ch
}

// offer replaces a value the receiver has not taken yet.
func offer(ch chan *T, s *T) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
