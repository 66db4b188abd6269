package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"satrunner/internal/config"
	"satrunner/internal/eventbus"
	"satrunner/internal/metrics"
	"satrunner/internal/runner"
	rtsup "satrunner/internal/runtime/supervisor"
	"satrunner/internal/secrets"
	"satrunner/internal/storage"
	"satrunner/internal/task/engine"
	"satrunner/internal/task/scheduler"
	logx "satrunner/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	metrics *metrics.Metrics
	msrv    *metrics.Server

	engine *engine.Service
	sched  *scheduler.Service
	runner *runner.Runner

	lookup secrets.LookupFunc

	mu      sync.Mutex
	task    string
	timeout time.Duration
}

type Option func(*App)

// WithLookup overrides how secret and passthrough names resolve (default:
// the process environment).
func WithLookup(fn secrets.LookupFunc) Option { return func(a *App) { a.lookup = fn } }

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
		metrics: metrics.New(),
	}
	for _, o := range opts {
		o(a)
	}

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log)
		if err != nil {
			return nil, err
		}
		a.store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.engine = engine.New(engCfg, log.With(logx.String("comp", "taskengine")), a.bus)
	a.sched = scheduler.New(mapSchedulerConfig(cfg), a.engine, log.With(logx.String("comp", "scheduler")))
	a.runner = runner.New(a.runSettings(cfg), log.With(logx.String("comp", "runner")), a.bus)
	a.msrv = metrics.NewServer(mapMetricsConfig(cfg), a.metrics, log)

	if a.timeout, err = taskTimeout(cfg); err != nil {
		return nil, err
	}
	a.task = a.runner.Settings().Task
	return a, nil
}

func (a *App) runSettings(cfg *config.Config) runner.Settings {
	set := runner.SettingsFromConfig(cfg)
	set.Lookup = a.lookup
	return set
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	// Reject a reload that the live components can't take, before it is committed.
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if _, err := mapTaskEngineConfig(cfg); err != nil {
			return err
		}
		if _, err := taskTimeout(cfg); err != nil {
			return err
		}
		for i, spec := range cfg.Task.Schedules {
			if _, err := scheduler.ParseSchedule(spec); err != nil {
				return fmt.Errorf("task.schedules[%d]: %w", i, err)
			}
		}
		_, _, err := mapStorageConfig(cfg)
		return err
	})

	cfg := a.cfgm.Get()
	if a.engine.Enabled() {
		a.engine.Start(a.sup.Context())
	}
	if err := a.syncSchedules(cfg); err != nil {
		return err
	}
	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	}
	a.msrv.Reconfigure(a.sup.Context(), mapMetricsConfig(cfg))

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.observe", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.observe(e)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	snap := a.sched.Snapshot()
	a.log.Info("app started",
		logx.String("task", a.task),
		logx.Int("schedules", len(snap.Schedules)),
		logx.Bool("scheduler", snap.Enabled),
		logx.String("timezone", snap.Timezone),
	)
	return nil
}

// observe turns engine and runner events into debug logs and drop metrics.
func (a *App) observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.TypeTaskDropped, eventbus.TypeTaskSkipped:
		reason := e.Type
		if ev, ok := e.Data.(engine.TaskEvent); ok && ev.Error != "" {
			reason = ev.Error
		}
		a.metrics.TriggerDropped(reason)
	case eventbus.TypeRunStep:
		if ev, ok := e.Data.(runner.StepEvent); ok {
			a.log.Trace("run step", logx.String("run_id", ev.RunID), logx.String("step", string(ev.Step)), logx.String("status", ev.Status))
			return
		}
	}
	a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if config.RequiresRestart(sections) {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLoggingConfig(next))

	a.runner.Apply(a.runSettings(next))
	if d, err := taskTimeout(next); err == nil {
		a.mu.Lock()
		a.timeout = d
		a.mu.Unlock()
	}

	prevEng := a.engine.Enabled()
	if engCfg, err := mapTaskEngineConfig(next); err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(ctx, engCfg)
		if !prevEng && engCfg.Enabled {
			a.engine.Start(ctx)
		}
	}

	prevSched := a.sched.Enabled()
	a.sched.Apply(mapSchedulerConfig(next))
	if err := a.syncSchedules(next); err != nil {
		a.log.Warn("schedule update failed", logx.Err(err))
	}
	switch {
	case prevSched && !next.Scheduler.Enabled:
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	case !prevSched && next.Scheduler.Enabled:
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
	}

	a.msrv.Reconfigure(ctx, mapMetricsConfig(next))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.closeStore()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// Each step is bounded so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); !ok || time.Until(dl) > max {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	// In-flight Runs are canceled with the supervisor context; the engine
	// waits for their process groups to be reaped.
	step("taskengine", 10*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("metrics", time.Second, func(c context.Context) error { a.msrv.Stop(c); return nil })
	step("storage", time.Second, func(c context.Context) error { return a.closeStore() })
	step("supervisor", 2*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	if errors.Is(err, storage.ErrClosed) {
		return nil
	}
	return err
}
