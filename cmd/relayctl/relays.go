package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Hubmakerlabs/relaycore/pkg/nostr/pool"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/relay"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/socket"
	"github.com/urfave/cli/v2"
)

func socketOptions(c *cli.Context) (opts []socket.Option) {
	if origin := c.String("origin"); origin != "" {
		opts = append(opts, socket.WithRequestHeader(http.Header{"Origin": {origin}}))
	}
	return
}

// relaysFromArgs reads the relay URLs given as arguments.
func relaysFromArgs(c *cli.Context) (l relay.List, err error) {
	for _, u := range c.Args().Slice() {
		r := relay.ReadWrite(u)
		if r.URL == "" {
			return nil, fmt.Errorf("invalid relay URL '%s'", u)
		}
		l = append(l, r)
	}
	if l = l.Dedup(); len(l) == 0 {
		return nil, fmt.Errorf("no relays given")
	}
	return
}

func newPool(c *cli.Context, l relay.List) (p *pool.T) {
	p = pool.New(c.Command.Name, socketOptions(c)...)
	p.ChangeRelays(l)
	return
}

// printJSON writes v as one line to the app's writer.
func printJSON(c *cli.Context, v any) (err error) {
	var b []byte
	if b, err = json.Marshal(v); chk.E(err) {
		return
	}
	_, err = fmt.Fprintln(c.App.Writer, string(b))
	return
}
