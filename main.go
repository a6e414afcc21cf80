package main

import (
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Hubmakerlabs/relaycore/app"
	"github.com/Hubmakerlabs/relaycore/pkg/context"
	"github.com/Hubmakerlabs/relaycore/pkg/interrupt"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/manager"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/session"
	"github.com/Hubmakerlabs/relaycore/pkg/slog"
	"github.com/alexflint/go-arg"
)

var (
	AppName = "relaycore"
	Version = "v0.1.0"
)

var args app.Config

func main() {
	var log, chk = slog.New(os.Stderr)
	arg.MustParse(&args)
	if !slog.SetLogLevelString(args.LogLevel) {
		log.W.F("unknown log level '%s'", args.LogLevel)
	}
	log.T.S(args)
	var dataDirBase string
	var err error
	if dataDirBase, err = os.UserHomeDir(); chk.E(err) {
		os.Exit(1)
	}
	dataDir := filepath.Join(dataDirBase, args.Profile)
	configPath := filepath.Join(dataDir, "config.json")
	log.D.F("using profile directory: %s", dataDir)
	if args.InitCfgCmd != nil {
		if err = os.MkdirAll(dataDir, 0700); chk.E(err) {
			os.Exit(1)
		}
		if err = args.Save(configPath); chk.E(err) {
			log.E.F("failed to write configuration: '%s'", err)
			os.Exit(1)
		}
		log.I.Ln("configuration written to", configPath)
		return
	}
	cli := args
	load := func() (cfg app.Config, err error) {
		cfg = cli
		defer cfg.Defaults()
		var file app.Config
		if err = file.Load(configPath); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.D.F("no configuration file at %s", configPath)
				err = nil
			}
			return
		}
		cfg.Merge(&file)
		return
	}
	if args, err = load(); chk.E(err) {
		log.E.F("failed to load configuration: '%s'", err)
		os.Exit(1)
	}
	log.I.F("%s %s", AppName, Version)
	factory := manager.NewFactory(func() *manager.T {
		return manager.New(args.BootstrapRelays(), args.SocketOptions()...)
	})
	it := interrupt.New(context.Bg(), os.Interrupt, syscall.SIGTERM)
	it.AddHandler(factory.Shutdown)
	c := it.Context()
	bus := session.NewBus()
	// SIGHUP rereads the configuration file and applies its account relays
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	it.AddHandler(func() { signal.Stop(hup) })
	go func() {
		for {
			select {
			case <-hup:
				cfg, err := load()
				if chk.E(err) {
					continue
				}
				log.I.Ln("configuration reloaded")
				bus.Set(cfg.Session())
			case <-c.Done():
				return
			}
		}
	}()
	if err = app.Run(c, &args, factory.Get(), bus); chk.E(err) {
		it.Request()
		<-it.Done()
		os.Exit(1)
	}
	it.Request()
	<-it.Done()
	log.I.Ln("shut down")
}
