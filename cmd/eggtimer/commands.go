package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"

	"eggtimer/internal/app"
	"eggtimer/internal/console"
	"eggtimer/internal/countdown"
	"eggtimer/internal/relay"
	"eggtimer/internal/storage"
	"eggtimer/internal/transport/ws"
	logx "eggtimer/pkg/logx"
)

var (
	cfgPath    string
	startAfter string
	watchURL   string
	watchToken string
	histLimit  int

	configFlag = cli.StringFlag{
		Name:        "config, c",
		Usage:       "path to the config file (json or yaml)",
		Value:       "./config.yaml",
		EnvVar:      "EGGTIMER_CONFIG",
		Destination: &cfgPath,
	}

	runFlags = []cli.Flag{
		configFlag,
		cli.StringFlag{
			Name:        "start, s",
			Usage:       "start a countdown of this length right away (e.g. 90, 5m)",
			Destination: &startAfter,
		},
	}

	watchFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "url, u",
			Usage:       "relay endpoint",
			Value:       "ws://127.0.0.1:8787/relay",
			Destination: &watchURL,
		},
		cli.StringFlag{
			Name:        "token, t",
			Usage:       "bearer token for the relay",
			EnvVar:      "EGGTIMER_TOKEN",
			Destination: &watchToken,
		},
	}

	historyFlags = []cli.Flag{
		configFlag,
		cli.IntFlag{
			Name:        "limit, n",
			Usage:       "number of runs to show (0 shows all)",
			Value:       20,
			Destination: &histLimit,
		},
	}
)

func countdownCmd(ctx context.Context, c *cli.Context) error {
	raw := c.Args().First()
	if raw == "" {
		return cli.ShowCommandHelp(c, c.Command.Name)
	}
	secs, err := console.ParseDuration(raw)
	if err != nil {
		return err
	}

	bar := console.NewBar(os.Stdout, "egg", secs)
	done := make(chan countdown.State, 1)
	end := func(s countdown.State) func() {
		return func() {
			select {
			case done <- s:
			default:
			}
		}
	}
	t := countdown.New(relay.Fanout{bar, countdown.ListenerFuncs{
		Finished:  end(countdown.StateFinished),
		Cancelled: end(countdown.StateCancelled),
	}})
	if err := t.SetDuration(secs); err != nil {
		return err
	}
	if err := t.Start(); err != nil {
		return err
	}

	var state countdown.State
	select {
	case state = <-done:
	case <-ctx.Done():
		t.Stop()
		state = <-done
	}
	bar.Wait()
	if state == countdown.StateCancelled {
		return cli.NewExitError("cancelled", 130)
	}
	fmt.Println("\a🔔 Time's up!")
	return nil
}

func runCmd(ctx context.Context, _ *cli.Context) error {
	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background())
		return err
	}
	if startAfter != "" {
		secs, err := console.ParseDuration(startAfter)
		if err == nil {
			err = a.StartTimerFrom(secs, app.SourceCLI)
		}
		if err != nil {
			a.Logger().Error("start failed", logx.Err(err))
		}
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		return err
	}
	return a.Err()
}

func watchCmd(ctx context.Context, _ *cli.Context) error {
	client, err := ws.Dial(ctx, watchURL, watchToken, logx.NewConsole("warn"))
	if err != nil {
		return err
	}
	defer client.Close()

	bar := console.NewBar(os.Stdout, "remote", 0)
	defer bar.Shutdown()
	return client.Receive(ctx, bar)
}

func historyCmd(ctx context.Context, _ *cli.Context) error {
	store, err := app.OpenHistory(cfgPath)
	if errors.Is(err, storage.ErrDisabled) {
		return cli.NewExitError("history is disabled in "+cfgPath, 1)
	}
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, histLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("eggtimer: no runs recorded")
		return nil
	}
	return writeHistory(os.Stdout, runs)
}

func writeHistory(w io.Writer, runs []storage.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tLENGTH\tOUTCOME\tLEFT\tSOURCE")
	for _, r := range runs {
		src := r.Source
		if src == "" {
			src = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			countdown.FormatClock(r.Duration),
			r.Outcome,
			countdown.FormatClock(r.Remaining),
			src,
		)
	}
	return tw.Flush()
}
