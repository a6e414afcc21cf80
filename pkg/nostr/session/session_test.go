package session

import (
	"testing"
	"time"

	"github.com/Hubmakerlabs/relaycore/pkg/context"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan *T) *T {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok)
		return s
	case <-time.After(time.Second):
		t.Fatal("nothing received")
	}
	return nil
}

func TestBusDeliversLatest(t *testing.T) {
	b := NewBus()
	c, cancel := context.Cancel(context.Bg())
	defer cancel()
	ch := b.Subscribe(c)
	select {
	case <-ch:
		t.Fatal("nothing was set yet")
	default:
	}
	alice := &T{Pubkey: "alice", Relays: relay.FromURLs("wss://a.example")}
	bob := &T{Pubkey: "bob"}
	b.Set(alice)
	b.Set(bob)
	assert.Same(t, bob, recv(t, ch), "stale values are replaced")
	b.Set(nil)
	assert.Nil(t, recv(t, ch))
	assert.Nil(t, b.Current())
}

func TestBusReplaysCurrent(t *testing.T) {
	b := NewBus()
	alice := &T{Pubkey: "alice"}
	b.Set(alice)
	c, cancel := context.Cancel(context.Bg())
	ch := b.Subscribe(c)
	assert.Same(t, alice, recv(t, ch))
	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}
