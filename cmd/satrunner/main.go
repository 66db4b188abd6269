package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"satrunner/internal/app"
)

func main() {
	var (
		cfgPath string
		once    bool
		history int
	)
	flag.StringVar(&cfgPath, "config", "./satrunner.yaml", "path to config (yaml or json)")
	flag.BoolVar(&once, "once", false, "run the task once now and exit with its exit code")
	flag.IntVar(&history, "history", 0, "print the last N recorded runs as JSON and exit")
	flag.Parse()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	switch {
	case history > 0:
		os.Exit(printHistory(a, history))
	case once:
		os.Exit(runOnce(a))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background(), app.StopFatalError)
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, append([]os.Signal{os.Interrupt, syscall.SIGTERM}, triggerSignals...)...)
	defer signal.Stop(sigs)

	reason := app.StopUnknown
loop:
	for {
		select {
		case s := <-sigs:
			switch {
			case slices.Contains(triggerSignals, s):
				if err := a.TriggerNow(); err != nil {
					fmt.Fprintln(os.Stderr, "manual trigger:", err)
				}
			case s == syscall.SIGTERM:
				reason = app.StopSIGTERM
				break loop
			default:
				reason = app.StopSIGINT
				break loop
			}
		case <-a.Done():
			reason = app.StopFatalError
			break loop
		}
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		fmt.Fprintln(os.Stderr, "fatal:", a.Err())
		os.Exit(1)
	}
}

// runOnce executes one Run in the foreground; SIGINT/SIGTERM cancel it.
func runOnce(a *app.App) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	res := a.RunOnce(ctx)
	_ = a.Stop(context.Background(), app.StopRunOnce)
	if !res.Succeeded() {
		fmt.Fprintf(os.Stderr, "run %s failed at %s: %s\n", res.ID, res.FailedStep, res.ErrText)
	}
	return res.ExitCode
}

func printHistory(a *app.App, n int) int {
	defer a.Stop(context.Background(), app.StopAppStop)
	runs, err := a.History(context.Background(), n)
	if err != nil {
		fmt.Fprintln(os.Stderr, "history:", err)
		return 1
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(runs); err != nil {
		fmt.Fprintln(os.Stderr, "history:", err)
		return 1
	}
	return 0
}
