package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/Hubmakerlabs/relaycore/pkg/nostr/relay"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/session"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/socket"
)

const (
	DefaultListen    = "127.0.0.1:3335"
	DefaultUserAgent = "relaycore"
)

type InitCfg struct{}

type Config struct {
	InitCfgCmd   *InitCfg `arg:"subcommand:initcfg" json:"-" help:"write the current flags to the profile's configuration file"`
	Listen       string   `arg:"-l,--listen" json:"listen,omitempty" help:"network address of the status endpoint (default 127.0.0.1:3335)"`
	Profile      string   `arg:"-p,--profile" json:"-" default:"relaycore" help:"profile directory name under the home directory"`
	Pubkey       string   `arg:"--pubkey" json:"pubkey,omitempty" help:"hex public key of the account whose relays are kept open"`
	Relays       []string `arg:"-r,--relay,separate" json:"relays,omitempty" help:"account relays, read and write (repeatable)"`
	ReadRelays   []string `arg:"--read,separate" json:"read_relays,omitempty" help:"account relays used for reading only (repeatable)"`
	WalletRelays []string `arg:"-w,--wallet,separate" json:"wallet_relays,omitempty" help:"wallet connect relays (repeatable)"`
	Bootstrap    []string `arg:"-b,--bootstrap,separate" json:"bootstrap,omitempty" help:"bootstrap relays used before the account has relays (repeatable)"`
	Origin       string   `arg:"--origin" json:"origin,omitempty" help:"Origin header sent when connecting to relays"`
	UserAgent    string   `arg:"--useragent" json:"user_agent,omitempty" help:"User-Agent header sent when connecting to relays (default relaycore)"`
	LogLevel     string   `arg:"--loglevel" default:"info" json:"-" help:"set log level [off,fatal,error,warn,info,debug,trace] (can also use GODEBUG environment variable)"`
}

func (c *Config) Save(filename string) (err error) {
	if c == nil {
		err = errors.New("cannot save nil config")
		log.E.Ln(err)
		return
	}
	var b []byte
	if b, err = json.MarshalIndent(c, "", "    "); chk.E(err) {
		return
	}
	if err = os.WriteFile(filename, b, 0600); chk.E(err) {
		return
	}
	return
}

func (c *Config) Load(filename string) (err error) {
	if c == nil {
		err = errors.New("cannot load into nil config")
		chk.E(err)
		return
	}
	var b []byte
	if b, err = os.ReadFile(filename); err != nil {
		return
	}
	if err = json.Unmarshal(b, c); chk.E(err) {
		return
	}
	return
}

// Merge fills the fields not given on the command line from a loaded
// configuration file.
func (c *Config) Merge(file *Config) {
	if c.Listen == "" {
		c.Listen = file.Listen
	}
	if c.Pubkey == "" {
		c.Pubkey = file.Pubkey
	}
	if c.Origin == "" {
		c.Origin = file.Origin
	}
	if c.UserAgent == "" {
		c.UserAgent = file.UserAgent
	}
	// repeatable flags add to the ones in the file
	c.Relays = append(c.Relays, file.Relays...)
	c.ReadRelays = append(c.ReadRelays, file.ReadRelays...)
	c.WalletRelays = append(c.WalletRelays, file.WalletRelays...)
	c.Bootstrap = append(c.Bootstrap, file.Bootstrap...)
}

// Defaults fills what neither the command line nor the file set.
func (c *Config) Defaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
}

// BootstrapRelays returns the configured bootstrap relays; an empty list
// selects the built in defaults.
func (c *Config) BootstrapRelays() relay.List { return relay.FromURLs(c.Bootstrap...) }

// Session describes the configured account, or nil when no account relays
// are configured.
func (c *Config) Session() *session.T {
	l := relay.FromURLs(c.Relays...)
	for _, u := range c.ReadRelays {
		l = append(l, relay.New(u, true, false))
	}
	l = l.Dedup()
	wallet := relay.FromURLs(c.WalletRelays...)
	if len(l) == 0 && len(wallet) == 0 {
		return nil
	}
	return &session.T{Pubkey: c.Pubkey, Relays: l, WalletRelays: wallet}
}

// SocketOptions carries the handshake headers to every relay socket.
func (c *Config) SocketOptions() (opts []socket.Option) {
	h := http.Header{}
	if c.Origin != "" {
		h.Set("Origin", c.Origin)
	}
	if c.UserAgent != "" {
		h.Set("User-Agent", c.UserAgent)
	}
	if len(h) > 0 {
		opts = append(opts, socket.WithRequestHeader(h))
	}
	return
}
