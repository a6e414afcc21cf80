package main

import (
	"fmt"
	"os"

	"github.com/Hubmakerlabs/relaycore/pkg/slog"
	"github.com/urfave/cli/v2"
)

var log, chk = slog.New(os.Stderr)

func newApp() *cli.App {
	return &cli.App{
		Name:  "relayctl",
		Usage: "query, subscribe and publish through relaycore pools",
		Commands: []*cli.Command{
			queryCmd,
			subCmd,
			publishCmd,
			keygenCmd,
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "silent",
				Usage:   "do not print logs and info messages to stderr",
				Aliases: []string{"s"},
				Action: func(ctx *cli.Context, b bool) error {
					if b {
						slog.SetLogLevel(slog.Off)
					}
					return nil
				},
			},
			&cli.StringFlag{
				Name:  "loglevel",
				Usage: "set log level [off,fatal,error,warn,info,debug,trace]",
				Action: func(ctx *cli.Context, l string) error {
					if !slog.SetLogLevelString(l) {
						return fmt.Errorf("unknown log level '%s'", l)
					}
					return nil
				},
			},
			&cli.StringFlag{
				Name:  "origin",
				Usage: "Origin header sent when connecting to relays",
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
