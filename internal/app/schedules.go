package app

import (
	"fmt"
	"strings"
	"time"

	"satrunner/internal/config"
	"satrunner/internal/runner"
	"satrunner/internal/task/scheduler"
	logx "satrunner/pkg/logx"
)

func scheduleName(task string, i int) string { return fmt.Sprintf("%s#%d", task, i) }

// syncSchedules makes the registered schedules match cfg.task.schedules.
// Every schedule fires the same task, so they share its overlap state.
func (a *App) syncSchedules(cfg *config.Config) error {
	task := strings.TrimSpace(cfg.Task.Name)

	a.mu.Lock()
	prevTask := a.task
	a.task = task
	a.mu.Unlock()

	removed := a.sched.RemoveTask(prevTask)
	if prevTask != task {
		removed += a.sched.RemoveTask(task)
	}

	timeout, _ := taskTimeout(cfg)
	var errs []string
	for i, spec := range cfg.Task.Schedules {
		spec = strings.TrimSpace(spec)
		job := scheduler.Job{
			Task:    task,
			Timeout: timeout,
			Run:     a.runJob(runner.Scheduled(spec)),
		}
		if _, err := a.sched.AddSchedule(scheduleName(task, i), spec, job); err != nil {
			errs = append(errs, fmt.Sprintf("task.schedules[%d] %q: %v", i, spec, err))
		}
	}
	a.log.Debug("schedules synced", logx.String("task", task), logx.Int("removed", removed), logx.Int("added", len(cfg.Task.Schedules)-len(errs)))
	if len(errs) > 0 {
		return fmt.Errorf("schedules: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (a *App) currentTimeout() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timeout
}

func taskTimeout(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationField("task.timeout", cfg.Task.Timeout)
}
