// Command n2yo-report fetches the daily ISS and sky summary from N2YO and
// mails it as HTML. It is the executable the runner invokes; every setting
// comes from the environment.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"satrunner/internal/mailer"
	"satrunner/internal/n2yo"
	"satrunner/internal/report"
	logx "satrunner/pkg/logx"
)

func main() {
	var (
		testEmail bool
		logLevel  string
		parallel  int
	)
	flag.BoolVar(&testEmail, "test-email", false, "send an SMTP test message instead of the report")
	flag.StringVar(&logLevel, "log-level", "info", "log level")
	flag.IntVar(&parallel, "parallel", 2, "concurrent N2YO requests")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := logx.NewConsole(logLevel)
	if err := run(ctx, log, testEmail, parallel); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log logx.Logger, testEmail bool, parallel int) error {
	env := report.LoadEnv(nil, log)
	m := mailer.New(env.Mail, log)
	now := time.Now()

	if testEmail {
		if err := env.Mail.Validate(); err != nil {
			return err
		}
		return m.Send(ctx, mailer.TestMessage(now))
	}

	if err := env.Validate(); err != nil {
		return err
	}

	log.Info("fetching n2yo data", logx.Int("sat_id", env.Params.SatID))
	client := n2yo.New(env.APIKey, n2yo.WithLogger(log))
	sections := report.Collect(ctx, report.Plan(client, env.Params), parallel)
	if failed := report.Failed(sections); failed > 0 {
		log.Warn("some sections failed", logx.Int("failed", failed), logx.Int("total", len(sections)))
	}

	body, err := report.RenderHTML(now, sections)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if err := m.Send(ctx, mailer.Message{Subject: report.Subject(now), HTML: body}); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	log.Info("report finished")
	return nil
}
