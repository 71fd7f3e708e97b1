package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/treasuryhq/treasury/internal/client"
	"github.com/treasuryhq/treasury/internal/idgen"
)

func newCmd_Fetch() *cli.Command {
	return &cli.Command{
		Name:        "fetch",
		Usage:       "Resolve a previously stored asset id to its artifact path.",
		Description: "Connects to a running treasury server and resolves --id to its local artifact path.",
		Flags: []cli.Flag{
			FlagClientAddr,
			FlagTreasuryBase,
			&cli.StringFlag{Name: "id", Required: true, Usage: "16-hex-digit asset id"},
		},
		Action: func(c *cli.Context) error {
			id, err := idgen.Parse(c.String("id"))
			if err != nil {
				return err
			}

			cl, err := client.Dial(c.String("addr"), c.String("base"), true)
			if err != nil {
				return err
			}
			defer cl.Close()

			res, ok, err := cl.Fetch(id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("asset %s not found", id)
			}
			fmt.Println(res.Path)
			return nil
		},
	}
}
