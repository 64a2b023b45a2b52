package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp(ctx).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "eggtimer:", err)
		os.Exit(1)
	}
}

func newApp(ctx context.Context) *cli.App {
	app := cli.NewApp()
	app.Name = "eggtimer"
	app.HelpName = "eggtimer"
	app.Usage = "a countdown timer with relayed notifications"
	app.UsageText = "eggtimer <command> [arguments...]"
	app.Version = version
	app.Commands = []cli.Command{
		{
			Name:      "countdown",
			Aliases:   []string{"c"},
			Usage:     "run a countdown in this terminal",
			ArgsUsage: "<duration>",
			Action:    withContext(ctx, countdownCmd),
		},
		{
			Name:   "run",
			Usage:  "run the timer service (websocket relay, telegram bot, history)",
			Flags:  runFlags,
			Action: withContext(ctx, runCmd),
		},
		{
			Name:   "watch",
			Usage:  "follow a remote timer over its websocket relay",
			Flags:  watchFlags,
			Action: withContext(ctx, watchCmd),
		},
		{
			Name:   "history",
			Usage:  "list recorded runs",
			Flags:  historyFlags,
			Action: withContext(ctx, historyCmd),
		},
	}
	return app
}

func withContext(ctx context.Context, fn func(context.Context, *cli.Context) error) func(*cli.Context) error {
	return func(c *cli.Context) error { return fn(ctx, c) }
}
