package signer

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	k := Generate()
	ev := &nostr.Event{Kind: nostr.KindTextNote, Content: "signed"}
	require.NoError(t, k.Sign(ev))
	assert.Equal(t, k.PubKey(), ev.PubKey)
	assert.Len(t, ev.ID, 64)
	ok, err := ev.CheckSignature()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewKeyFromNsec(t *testing.T) {
	k := Generate()
	nsec, err := k.Nsec()
	require.NoError(t, err)
	k2, err := NewKey(nsec)
	require.NoError(t, err)
	assert.Equal(t, k.PubKey(), k2.PubKey())
	k3, err := NewKey(k.Secret())
	require.NoError(t, err)
	assert.Equal(t, k.PubKey(), k3.PubKey())
	npub, err := k.Npub()
	require.NoError(t, err)
	assert.Contains(t, npub, "npub1")
}

func TestNewKeyInvalid(t *testing.T) {
	for _, s := range []string{"", "abc", "nsec1notreally", "zz" + Generate().Secret()[2:]} {
		_, err := NewKey(s)
		assert.ErrorIs(t, err, ErrInvalidKey, s)
	}
}
