package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/treasuryhq/treasury/internal/client"
)

func newCmd_Find() *cli.Command {
	return &cli.Command{
		Name:        "find",
		Usage:       "Look up whether a source has already been imported to a target.",
		Description: "Connects to a running treasury server and checks whether --source has already been imported to --target, without importing it.",
		Flags: []cli.Flag{
			FlagClientAddr,
			FlagTreasuryBase,
			&cli.StringFlag{Name: "source", Required: true, Usage: "source URL (file:, data:, http(s):)"},
			&cli.StringFlag{Name: "target", Required: true, Usage: "target format"},
		},
		Action: func(c *cli.Context) error {
			cl, err := client.Dial(c.String("addr"), c.String("base"), true)
			if err != nil {
				return err
			}
			defer cl.Close()

			res, ok, err := cl.Find(c.String("source"), c.String("target"))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no asset found for %s -> %s", c.String("source"), c.String("target"))
			}
			fmt.Printf("%s\t%s\n", res.ID, res.Path)
			return nil
		},
	}
}
