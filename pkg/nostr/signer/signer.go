// Package signer signs events before they are published.
package signer

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Hubmakerlabs/relaycore/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

var log, chk = slog.New(os.Stderr)

var ErrInvalidKey = errors.New("invalid secret key")

// I signs events for one public key.
type I interface {
	PubKey() string
	Sign(ev *nostr.Event) error
}

// Key is a signer holding a secret key in memory.
type Key struct {
	sec string
	pub string
}

var _ I = (*Key)(nil)

// NewKey accepts a secret key as hex or as an nsec.
func NewKey(sec string) (k *Key, err error) {
	sec = strings.TrimSpace(sec)
	if strings.HasPrefix(sec, "nsec1") {
		var prefix string
		var v any
		if prefix, v, err = nip19.Decode(sec); chk.D(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		if prefix != "nsec" {
			return nil, fmt.Errorf("%w: %s", ErrInvalidKey, prefix)
		}
		sec = v.(string)
	}
	if len(sec) != 64 {
		return nil, ErrInvalidKey
	}
	var pub string
	if pub, err = nostr.GetPublicKey(sec); chk.D(err) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Key{sec: sec, pub: pub}, nil
}

// Generate returns a signer for a fresh random key.
func Generate() (k *Key) {
	var err error
	if k, err = NewKey(nostr.GeneratePrivateKey()); chk.E(err) {
		panic(err)
	}
	return
}

func (k *Key) PubKey() string { return k.pub }

// Secret returns the hex secret key.
func (k *Key) Secret() string { return k.sec }

func (k *Key) Npub() (string, error) { return nip19.EncodePublicKey(k.pub) }

func (k *Key) Nsec() (string, error) { return nip19.EncodePrivateKey(k.sec) }

// Sign sets the event's pubkey, id and signature.
func (k *Key) Sign(ev *nostr.Event) (err error) {
	ev.PubKey = k.pub
	if ev.CreatedAt == 0 {
		ev.CreatedAt = nostr.Now()
	}
	if ev.Tags == nil {
		ev.Tags = nostr.Tags{}
	}
	if err = ev.Sign(k.sec); chk.E(err) {
		return
	}
	log.T.F("signed event %s kind %d", ev.ID, ev.Kind)
	return
}
