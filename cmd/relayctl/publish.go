package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Hubmakerlabs/relaycore/pkg/nostr/pool"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/signer"
	"github.com/nbd-wtf/go-nostr"
	"github.com/urfave/cli/v2"
)

var publishCmd = &cli.Command{
	Name:  "publish",
	Usage: "signs an event and publishes it, succeeding once any relay accepts it",
	Description: `the event is sent to every relay at once; the first OK true wins.
when every relay refuses, each relay's answer is printed.

example:
		relayctl publish --sec <nsec> -c 'hello' wss://relay.damus.io wss://nos.lol`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "sec",
			Usage:    "secret key to sign the event, as hex or nsec",
			EnvVars:  []string{"NOSTR_SECRET_KEY"},
			Required: true,
		},
		&cli.IntFlag{
			Name:    "kind",
			Aliases: []string{"k"},
			Usage:   "event kind",
			Value:   nostr.KindTextNote,
		},
		&cli.StringFlag{
			Name:    "content",
			Aliases: []string{"c"},
			Usage:   "event content",
		},
		&cli.StringSliceFlag{
			Name:    "tag",
			Aliases: []string{"t"},
			Usage:   "sets a tag field on the event, takes a value like -t e=<id>;<relay>",
		},
	},
	ArgsUsage: "relay [relay...]",
	Action: func(c *cli.Context) (err error) {
		l, err := relaysFromArgs(c)
		if err != nil {
			return
		}
		k, err := signer.NewKey(c.String("sec"))
		if err != nil {
			return
		}
		ev := &nostr.Event{
			Kind:    c.Int("kind"),
			Content: c.String("content"),
			Tags:    nostr.Tags{},
		}
		for _, tagFlag := range c.StringSlice("tag") {
			spl := strings.SplitN(tagFlag, "=", 2)
			if len(spl) != 2 || spl[0] == "" {
				return fmt.Errorf("invalid --tag '%s'", tagFlag)
			}
			ev.Tags = append(ev.Tags,
				append(nostr.Tag{spl[0]}, strings.Split(spl[1], ";")...))
		}
		if err = k.Sign(ev); err != nil {
			return
		}
		p := newPool(c, l)
		defer p.Close()
		o, err := p.Publish(c.Context, ev)
		var pe *pool.PublishError
		if errors.As(err, &pe) {
			for _, fail := range pe.Outcomes {
				fmt.Fprintf(c.App.ErrWriter, "%s: %v\n", fail.URL, fail.Err)
			}
			return pe
		} else if err != nil {
			return
		}
		log.I.F("accepted by %s", o.URL)
		return printJSON(c, ev)
	},
}
