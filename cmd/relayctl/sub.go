package main

import (
	"os/signal"
	"sync"
	"syscall"

	"github.com/Hubmakerlabs/relaycore/pkg/nostr/correlation"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/subscription"
	"github.com/nbd-wtf/go-nostr"
	"github.com/urfave/cli/v2"
)

var subCmd = &cli.Command{
	Name:  "sub",
	Usage: "keeps a subscription open on the given relays, printing events as they arrive",
	Description: `runs until interrupted or until every relay has ended its subscription.

example:
		relayctl sub -k 1 wss://relay.damus.io`,
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
		ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		var subs []*subscription.T[*nostr.Event]
		for _, u := range l.URLs() {
			cl, _ := p.Client(u)
			subs = append(subs, subscription.New(cl,
				correlation.NewLabelled("relayctl"), f, subscription.NostrEvent))
		}
		var mx sync.Mutex
		var wg sync.WaitGroup
		for _, s := range subs {
			wg.Add(1)
			go func(s *subscription.T[*nostr.Event]) {
				defer wg.Done()
				for ev := range s.Events() {
					mx.Lock()
					chk.E(printJSON(c, ev))
					mx.Unlock()
				}
			}(s)
		}
		all := make(chan struct{})
		go func() {
			wg.Wait()
			close(all)
		}()
		select {
		case <-ctx.Done():
		case <-all:
			log.I.Ln("all subscriptions ended")
		}
		for _, s := range subs {
			s.Unsubscribe()
		}
		wg.Wait()
		return
	},
}
