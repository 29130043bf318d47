package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "mintctl",
		Usage: "Inspect the NFT contract and mint transactions from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc",
				Usage:   "chain RPC URL, overrides CHAIN_RPC_URL",
				EnvVars: []string{"MINTCTL_RPC_URL"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "overall deadline for the command",
				Value: defaultTimeout,
			},
		},
		Commands: []*cli.Command{
			ContractCommand(),
			QuoteCommand(),
			TokenCommand(),
			PinCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
