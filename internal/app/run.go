package app

import (
	"context"
	"fmt"
	"time"

	"satrunner/internal/runner"
	"satrunner/internal/storage"
	"satrunner/internal/task/engine"
	logx "satrunner/pkg/logx"
)

// runJob adapts a Run to an engine task body. A failed Run is returned as an
// error so it lands in the engine history as a failure.
func (a *App) runJob(trig runner.Trigger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		t := trig
		t.At = time.Now()
		res := a.execute(ctx, t)
		if !res.Succeeded() {
			return fmt.Errorf("run %s failed at %s (exit %d): %s", res.ID, res.FailedStep, res.ExitCode, res.ErrText)
		}
		return nil
	}
}

func (a *App) execute(ctx context.Context, trig runner.Trigger) runner.Result {
	done := a.metrics.RunStarted()
	res := a.runner.Run(ctx, trig)
	done()
	a.metrics.ObserveRun(res)
	a.record(res)
	return res
}

func (a *App) record(res runner.Result) {
	if a.store == nil {
		return
	}
	// The Run context may already be canceled; the record still has to land.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.store.RecordRun(ctx, recordFromResult(res)); err != nil {
		a.log.Warn("run history write failed", logx.String("run_id", res.ID), logx.Err(err))
	}
}

// TriggerNow queues a manual Run on the engine and returns once it is queued.
// Manual Runs are never skipped for overlap.
func (a *App) TriggerNow() error {
	a.mu.Lock()
	task, timeout := a.task, a.timeout
	a.mu.Unlock()

	err := a.engine.Enqueue(engine.Task{
		Name:    task,
		Timeout: timeout,
		Run:     a.runJob(runner.Manual()),
		Opt:     engine.TaskOptions{Overlap: engine.OverlapAllow},
	})
	if err != nil {
		return fmt.Errorf("manual trigger: %w", err)
	}
	a.log.Info("manual run queued", logx.String("task", task))
	return nil
}

// RunOnce executes one manual Run in the calling goroutine, bypassing the
// engine queue. The task timeout (or the engine default) still applies.
func (a *App) RunOnce(ctx context.Context) runner.Result {
	timeout := a.currentTimeout()
	if timeout <= 0 {
		timeout = a.engine.Snapshot().DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return a.execute(ctx, runner.Manual())
}

// History returns persisted Runs of the configured task, newest first.
func (a *App) History(ctx context.Context, limit int) ([]storage.RunRecord, error) {
	if a.store == nil {
		return nil, storage.ErrDisabled
	}
	a.mu.Lock()
	task := a.task
	a.mu.Unlock()
	return a.store.RecentRuns(ctx, task, limit)
}
