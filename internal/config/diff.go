package config

import (
	"reflect"

	logx "satrunner/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging. Secret names are fine to log; values never
// appear in Config.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 12)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
		)
	}
	if !reflect.DeepEqual(oldCfg.TaskEngine, newCfg.TaskEngine) {
		changed = append(changed, "task_engine")
		attrs = append(attrs,
			logx.Int("task_engine.workers", newCfg.TaskEngine.Workers),
			logx.String("task_engine.overlap", newCfg.TaskEngine.Overlap),
		)
	}
	if !reflect.DeepEqual(oldCfg.Task, newCfg.Task) {
		changed = append(changed, "task")
		attrs = append(attrs,
			logx.String("task.name", newCfg.Task.Name),
			logx.Strings("task.schedules", newCfg.Task.Schedules),
		)
	}
	if !reflect.DeepEqual(oldCfg.Secrets, newCfg.Secrets) {
		changed = append(changed, "secrets")
		attrs = append(attrs,
			logx.Int("secrets.required", len(newCfg.Secrets.Required)),
			logx.Int("secrets.optional", len(newCfg.Secrets.Optional)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	if !reflect.DeepEqual(oldCfg.Metrics, newCfg.Metrics) {
		changed = append(changed, "metrics")
	}
	return changed, attrs
}

// RequiresRestart reports whether any of the sections can't be applied live.
func RequiresRestart(sections []string) bool {
	for _, s := range sections {
		if s == "storage" {
			return true
		}
	}
	return false
}
