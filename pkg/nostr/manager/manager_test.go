package manager

import (
	"errors"
	"testing"
	"time"

	"github.com/Hubmakerlabs/relaycore/pkg/context"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/pool"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/relay"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/session"
	"github.com/Hubmakerlabs/relaycore/pkg/relaytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accepting(t *testing.T) *relaytest.Relay {
	t.Helper()
	r := relaytest.New(relaytest.Handlers{OnEvent: relaytest.Accept})
	t.Cleanup(r.Close)
	return r
}

func TestPublishFallsBackToBootstrap(t *testing.T) {
	boot, user := accepting(t), accepting(t)
	m := New(relay.FromURLs(boot.URL))
	defer m.Close()
	o, err := m.Publish(context.Bg(), relaytest.TextNote("first post"))
	require.NoError(t, err)
	assert.Equal(t, boot.URL, o.URL)
	m.Apply(&session.T{Pubkey: "alice", Relays: relay.FromURLs(user.URL)})
	o, err = m.Publish(context.Bg(), relaytest.TextNote("second post"))
	require.NoError(t, err)
	assert.Equal(t, user.URL, o.URL)
}

func TestPublishFallsBackWhileSigningOut(t *testing.T) {
	boot, user := accepting(t), accepting(t)
	m := New(relay.FromURLs(boot.URL))
	defer m.Close()
	s := &session.T{Pubkey: "alice", Relays: relay.FromURLs(user.URL)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			if i%2 == 0 {
				m.Apply(s)
			} else {
				m.Apply(nil)
			}
		}
	}()
	for i := 0; i < 20; i++ {
		_, err := m.Publish(context.Bg(), relaytest.TextNote("post"))
		assert.NotErrorIs(t, err, pool.ErrNoRelays)
	}
	<-done
	m.Apply(nil)
	o, err := m.Publish(context.Bg(), relaytest.TextNote("signed out"))
	require.NoError(t, err)
	assert.Equal(t, boot.URL, o.URL)
}

func TestPublishWalletNeverFallsBack(t *testing.T) {
	boot, wallet := accepting(t), accepting(t)
	m := New(relay.FromURLs(boot.URL))
	defer m.Close()
	_, err := m.PublishWallet(context.Bg(), relaytest.TextNote("zap request"))
	var me *MissingRelaysError
	require.True(t, errors.As(err, &me), "%v", err)
	assert.Equal(t, Wallet, me.Pool)
	assert.Zero(t, boot.Count("EVENT"))
	m.Apply(&session.T{Pubkey: "alice", WalletRelays: relay.FromURLs(wallet.URL)})
	o, err := m.PublishWallet(context.Bg(), relaytest.TextNote("zap request"))
	require.NoError(t, err)
	assert.Equal(t, wallet.URL, o.URL)
}

func TestApplySkipsUnchangedPools(t *testing.T) {
	user := accepting(t)
	m := New(nil)
	defer m.Close()
	s := &session.T{Pubkey: "alice", Relays: relay.FromURLs(user.URL)}
	m.Apply(s)
	require.NoError(t, m.Regular.EnsureAllConnected(context.Bg()))
	before, ok := m.Regular.Client(user.URL)
	require.True(t, ok)
	// same relays in a new value
	m.Apply(&session.T{Pubkey: "alice", Relays: relay.FromURLs(user.URL, user.URL)})
	after, ok := m.Regular.Client(user.URL)
	require.True(t, ok)
	assert.Same(t, before, after)
	assert.True(t, after.Socket().IsConnected())
	assert.Equal(t, 1, user.Accepted())
}

func TestSignOutTearsDownAccountPools(t *testing.T) {
	boot, user, wallet := accepting(t), accepting(t), accepting(t)
	m := New(relay.FromURLs(boot.URL))
	defer m.Close()
	m.Apply(&session.T{
		Pubkey:       "alice",
		Relays:       relay.FromURLs(user.URL),
		WalletRelays: relay.FromURLs(wallet.URL),
	})
	assert.Equal(t, 1, m.Regular.Len())
	assert.Equal(t, 1, m.Wallet.Len())
	m.Apply(nil)
	assert.Zero(t, m.Regular.Len())
	assert.Zero(t, m.Wallet.Len())
	assert.Equal(t, 1, m.Bootstrap.Len())
	assert.Nil(t, m.Session())
}

func TestObserve(t *testing.T) {
	user := accepting(t)
	m := New(nil)
	defer m.Close()
	bus := session.NewBus()
	c, cancel := context.Cancel(context.Bg())
	done := make(chan struct{})
	go func() {
		m.Observe(c, bus)
		close(done)
	}()
	bus.Set(&session.T{Pubkey: "alice", Relays: relay.FromURLs(user.URL)})
	assert.Eventually(t, func() bool { return m.Regular.Len() == 1 },
		3*time.Second, 10*time.Millisecond)
	bus.Set(nil)
	assert.Eventually(t, func() bool { return m.Regular.Len() == 0 },
		3*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Observe did not return")
	}
}

func TestStatuses(t *testing.T) {
	m := New(relay.FromURLs("wss://boot.example"))
	defer m.Close()
	st := m.Statuses()
	assert.Equal(t, []pool.Status{{URL: "wss://boot.example"}}, st[Bootstrap])
	assert.Empty(t, st[Regular])
	assert.Len(t, st, 3)
}

func TestFactory(t *testing.T) {
	var built int
	f := NewFactory(func() *T {
		built++
		return New(relay.FromURLs("wss://boot.example"))
	})
	a, b := f.Get(), f.Get()
	assert.Same(t, a, b)
	assert.Equal(t, 1, built)
	f.Shutdown()
	assert.Zero(t, a.Bootstrap.Len())
	c := f.Get()
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, built)
	f.Shutdown()
	f.Shutdown()
}

func TestDefaultBootstrap(t *testing.T) {
	m := New(nil)
	defer m.Close()
	assert.True(t, m.Bootstrap.Relays().Equal(DefaultBootstrap))
}
