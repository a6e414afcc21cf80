package main

import (
	"fmt"

	"github.com/Hubmakerlabs/relaycore/pkg/nostr/signer"
	"github.com/mdp/qrterminal/v3"
	"github.com/urfave/cli/v2"
)

var keygenCmd = &cli.Command{
	Name:  "keygen",
	Usage: "generates a new key pair and prints it as nsec and npub",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "qr",
			Usage: "also render the npub as a QR code",
		},
	},
	Action: func(c *cli.Context) (err error) {
		k := signer.Generate()
		var nsec, npub string
		if nsec, err = k.Nsec(); chk.E(err) {
			return
		}
		if npub, err = k.Npub(); chk.E(err) {
			return
		}
		w := c.App.Writer
		fmt.Fprintln(w, "nsec:", nsec)
		fmt.Fprintln(w, "npub:", npub)
		fmt.Fprintln(w, "hex: ", k.PubKey())
		if c.Bool("qr") {
			qrterminal.GenerateWithConfig("nostr:"+npub, qrterminal.Config{
				Level:     qrterminal.L,
				Writer:    w,
				WhiteChar: qrterminal.WHITE,
				BlackChar: qrterminal.BLACK,
				QuietZone: 2,
			})
		}
		return
	},
}
