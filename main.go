package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

var gitCommitSHA = ""

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)

		select {
		case <-interrupt:
			fmt.Println()
			klog.Info("received interrupt signal")
			cancel()
		case <-ctx.Done():
		}

		signal.Stop(interrupt)
	}()

	app := &cli.App{
		Name:        "treasury",
		Version:     gitCommitSHA,
		Description: "Content-addressed asset treasury: imports source files through loadable importer plugins and serves them by id.",
		Before: func(c *cli.Context) error {
			return nil
		},
		Flags: append([]cli.Flag{}, NewKlogFlagSet()...),
		Commands: []*cli.Command{
			newCmd_Serve(),
			newCmd_Store(),
			newCmd_Fetch(),
			newCmd_Find(),
			newCmd_Version(),
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.RunContext(ctx, os.Args); err != nil {
		klog.Fatal(err)
	}
}
