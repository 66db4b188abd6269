package app

import (
	"satrunner/internal/config"
	"satrunner/internal/metrics"
	"satrunner/internal/task/engine"
	"satrunner/internal/task/scheduler"
	logx "satrunner/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: cfg.Scheduler.Enabled, Timezone: cfg.Scheduler.Timezone}
}

// mapTaskEngineConfig maps task_engine. The engine is always on: manual
// triggers need it even when the scheduler is off.
func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	te := cfg.TaskEngine
	defTimeout, err := config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	maxQueueDelay, err := config.ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Enabled:        true,
		Workers:        te.Workers,
		QueueSize:      te.QueueSize,
		DefaultTimeout: defTimeout,
		MaxQueueDelay:  maxQueueDelay,
		HistorySize:    te.HistorySize,
		Overlap:        engine.ParseOverlap(te.Overlap),
	}, nil
}

func mapMetricsConfig(cfg *config.Config) metrics.ServerConfig {
	if cfg.Metrics == nil {
		return metrics.ServerConfig{}
	}
	return metrics.ServerConfig{Enabled: cfg.Metrics.Enabled, Addr: cfg.Metrics.Addr, Pprof: cfg.Metrics.Pprof}
}
