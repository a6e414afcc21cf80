// Package app runs the relaycore daemon: it keeps the configured account's
// relay pools connected and reports their state over HTTP.
package app

import (
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/Hubmakerlabs/relaycore/pkg/context"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/manager"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/session"
	"github.com/Hubmakerlabs/relaycore/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

const warmupTimeout = 10 * time.Second

// Run applies the configured session to m, follows later sessions from src,
// serves the status endpoint and blocks until c is done. Each started
// channel receives the bound address.
func Run(c context.T, cfg *Config, m *manager.T, src session.Source,
	started ...chan string) (err error) {

	m.Apply(cfg.Session())
	go m.Observe(c, src)
	go warmup(c, m)
	var ln net.Listener
	if ln, err = net.Listen("tcp", cfg.Listen); chk.E(err) {
		return
	}
	srv := &http.Server{
		Handler:      NewStatus(m).Handler(),
		WriteTimeout: 2 * time.Second,
		ReadTimeout:  2 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	log.I.Ln("status endpoint listening on", ln.Addr())
	for _, s := range started {
		s <- ln.Addr().String()
	}
	go func() {
		<-c.Done()
		sc, cancel := context.Timeout(context.Bg(), 2*time.Second)
		defer cancel()
		chk.E(srv.Shutdown(sc))
	}()
	if err = srv.Serve(ln); errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return
}

// warmup dials every pool once so the status endpoint has something to
// report before the first publish.
func warmup(c context.T, m *manager.T) {
	c, cancel := context.Timeout(c, warmupTimeout)
	defer cancel()
	for role, p := range m.Pools() {
		if err := p.EnsureAllConnected(c); err != nil {
			log.W.F("[%s] some relays are unreachable: %v", role, err)
		}
	}
}
