package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"satrunner/internal/eventbus"
	"satrunner/internal/secrets"
	logx "satrunner/pkg/logx"
)

// minMaskLen keeps very short values ("0", "10") from masking ordinary output.
const minMaskLen = 4

type Runner struct {
	log logx.Logger
	bus eventbus.Bus

	mu  sync.RWMutex
	set Settings
}

func New(set Settings, log logx.Logger, bus eventbus.Bus) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{log: log, bus: bus, set: set}
}

// Apply swaps the settings used by Runs that start afterwards.
func (r *Runner) Apply(set Settings) {
	r.mu.Lock()
	r.set = set
	r.mu.Unlock()
}

func (r *Runner) Settings() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set
}

// run is the per-Run state shared by the steps.
type run struct {
	r   *Runner
	set Settings
	log logx.Logger
	res *Result

	secrets *secrets.Set
	masker  *secrets.Masker

	workspace string // per-run clone dir; empty when the source is used in place
	srcDir    string
}

// Run executes one Run to a terminal state. It never panics on step failure;
// the returned Result carries the outcome.
func (r *Runner) Run(ctx context.Context, trig Trigger) Result {
	if trig.At.IsZero() {
		trig.At = time.Now()
	}
	set := r.Settings()
	res := Result{
		ID:        uuid.NewString(),
		Task:      set.Task,
		Trigger:   trig,
		State:     StateNotStarted,
		StartedAt: time.Now(),
	}
	ru := &run{
		r:   r,
		set: set,
		res: &res,
		log: r.log.With(
			logx.String("run_id", res.ID),
			logx.String("task", set.Task),
			logx.String("trigger", string(trig.Kind)),
		),
	}
	defer ru.cleanup()

	ru.log.Info("run started", logx.String("schedule", trig.Schedule))
	ru.setState(StateProvisioning)

	steps := []struct {
		step Step
		fn   func(ctx context.Context) (skipped bool, err error)
	}{
		{StepSecrets, ru.resolveSecrets},
		{StepCheckout, ru.checkout},
		{StepProvision, ru.provision},
		{StepInstall, ru.install},
		{StepDiagnose, ru.diagnose},
		{StepInvoke, ru.invoke},
	}
	for _, s := range steps {
		if s.step == StepInvoke {
			ru.setState(StateRunning)
		}
		if err := ru.step(ctx, s.step, s.fn); err != nil {
			ru.finish(s.step, err)
			return res
		}
	}
	ru.finish("", nil)
	return res
}

func (ru *run) step(ctx context.Context, step Step, fn func(ctx context.Context) (bool, error)) error {
	// A canceled Run (timeout, shutdown) stops before the next step starts.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	start := time.Now()
	ru.publishStep(step, "started", 0, nil)
	skipped, err := fn(ctx)
	dur := time.Since(start)
	switch {
	case err != nil:
		ru.publishStep(step, "failed", dur, err)
		ru.log.Error("step failed", logx.String("step", string(step)), logx.Duration("dur", dur), logx.String("err", ru.masker.Mask(err.Error())))
	case skipped:
		ru.publishStep(step, "skipped", dur, nil)
		ru.log.Debug("step skipped", logx.String("step", string(step)))
	default:
		ru.publishStep(step, "ok", dur, nil)
		ru.log.Info("step ok", logx.String("step", string(step)), logx.Duration("dur", dur))
	}
	return err
}

func (ru *run) setState(s State) {
	ru.res.State = s
	ru.log.Debug("run state", logx.String("state", string(s)))
}

func (ru *run) finish(failed Step, err error) {
	res := ru.res
	res.FinishedAt = time.Now()
	if err == nil {
		res.State = StateSucceeded
		res.ExitCode = 0
	} else {
		res.State = StateFailed
		res.FailedStep = failed
		res.Err = err
		res.ErrText = ru.masker.Mask(err.Error())
		res.ExitCode = 1
		var xe *ExitError
		if errors.As(err, &xe) && xe.Step == StepInvoke && xe.Code > 0 {
			res.ExitCode = xe.Code
		}
	}

	fields := []logx.Field{
		logx.String("state", string(res.State)),
		logx.Int("exit_code", res.ExitCode),
		logx.Duration("dur", res.Duration()),
	}
	if err != nil {
		fields = append(fields, logx.String("failed_step", string(failed)), logx.String("err", res.ErrText))
		ru.log.Warn("run failed", fields...)
	} else {
		ru.log.Info("run succeeded", fields...)
	}

	if ru.r.bus != nil {
		ru.r.bus.Publish(eventbus.Event{Type: eventbus.TypeRunFinished, Time: res.FinishedAt, Data: RunEvent{
			RunID:      res.ID,
			Task:       res.Task,
			Trigger:    res.Trigger.Kind,
			State:      res.State,
			FailedStep: res.FailedStep,
			ExitCode:   res.ExitCode,
			Duration:   res.Duration(),
		}})
	}
}

func (ru *run) publishStep(step Step, status string, dur time.Duration, err error) {
	if ru.r.bus == nil {
		return
	}
	ev := StepEvent{RunID: ru.res.ID, Task: ru.res.Task, Step: step, Status: status, State: ru.res.State, Duration: dur}
	if err != nil {
		ev.Error = ru.masker.Mask(err.Error())
	}
	ru.r.bus.Publish(eventbus.Event{Type: eventbus.TypeRunStep, Time: time.Now(), Data: ev})
}

func (ru *run) cleanup() {
	if ru.workspace == "" {
		return
	}
	if ru.set.KeepWorkspace {
		ru.log.Info("workspace kept", logx.String("dir", ru.workspace))
		return
	}
	if err := os.RemoveAll(ru.workspace); err != nil {
		ru.log.Warn("workspace cleanup failed", logx.String("dir", ru.workspace), logx.Err(err))
	}
}

func (ru *run) resolveSecrets(ctx context.Context) (bool, error) {
	_ = ctx
	set, err := secrets.Resolve(ru.set.Secrets, ru.set.Lookup)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrSecrets, err)
	}
	ru.secrets = set
	ru.masker = secrets.NewMasker(set.Values(), minMaskLen)
	return false, nil
}

func (ru *run) diagnose(ctx context.Context) (bool, error) {
	_ = ctx
	if !ru.set.DiagnoseSecrets {
		return true, nil
	}
	report := ru.secrets.Diagnose()
	secrets.LogDiagnosis(ru.log.With(logx.String("step", string(StepDiagnose))), report)
	ru.res.Secrets = report
	return false, nil
}

// workDir resolves a configured sub directory against the source dir.
func (ru *run) workDir(sub string) string {
	if sub == "" {
		return ru.srcDir
	}
	if filepath.IsAbs(sub) {
		return sub
	}
	return filepath.Join(ru.srcDir, sub)
}
