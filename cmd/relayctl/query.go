package main

import (
	"github.com/urfave/cli/v2"
)

var queryCmd = &cli.Command{
	Name:  "query",
	Usage: "sends a REQ to the given relays and prints the stored events, one JSON object per line",
	Description: `every relay is asked the same filter; the answers are merged and duplicates dropped.
each relay's answer ends at EOSE or after 15 seconds.

example:
		relayctl query -k 1 -l 15 wss://relay.damus.io wss://nos.lol
		echo '{"kinds": [0]}' | relayctl query -a <pubkey> wss://relay.primal.net`,
	Flags:     filterFlags,
	ArgsUsage: "relay [relay...]",
	Action: func(c *cli.Context) (err error) {
		l, err := relaysFromArgs(c)
		if err != nil {
			return
		}
		f, err := buildFilter(c)
		if err != nil {
			return
		}
		p := newPool(c, l)
		defer p.Close()
		evs, err := p.Query(c.Context, f)
		if err != nil {
			return
		}
		log.D.F("%d events from %d relays", len(evs), len(l))
		for _, ev := range evs {
			if err = printJSON(c, ev); err != nil {
				return
			}
		}
		return
	},
}
