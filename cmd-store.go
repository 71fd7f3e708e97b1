package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/treasuryhq/treasury/internal/client"
)

func newCmd_Store() *cli.Command {
	return &cli.Command{
		Name:        "store",
		Usage:       "Import a source into a treasury.",
		Description: "Connects to a running treasury server, opens the treasury at --base, and imports --source into --target.",
		ArgsUsage:   "",
		Flags: []cli.Flag{
			FlagClientAddr,
			FlagTreasuryBase,
			&cli.StringFlag{Name: "source", Required: true, Usage: "source URL (file:, data:, http(s):)"},
			&cli.StringFlag{Name: "format", Usage: "source format hint, if the source's extension is ambiguous"},
			&cli.StringFlag{Name: "target", Required: true, Usage: "target format to import into"},
		},
		Action: func(c *cli.Context) error {
			cl, err := client.Dial(c.String("addr"), c.String("base"), true)
			if err != nil {
				return err
			}
			defer cl.Close()

			res, err := cl.Store(c.String("source"), c.String("format"), c.String("target"))
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\n", res.ID, res.Path)
			return nil
		},
	}
}

var (
	FlagClientAddr = &cli.StringFlag{
		Name:    "addr",
		Usage:   "treasury server address",
		EnvVars: []string{"TREASURY_ADDR"},
		Value:   "127.0.0.1:12345",
	}
	FlagTreasuryBase = &cli.StringFlag{
		Name:     "base",
		Usage:    "base directory of the treasury to open",
		Required: true,
	}
)
