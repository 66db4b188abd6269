package app

import (
	"strings"
	"time"

	"satrunner/internal/config"
	"satrunner/internal/runner"
	"satrunner/internal/storage"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy, Keep: sc.Keep}, true, nil
}

// recordFromResult flattens a Run outcome for the history store.
func recordFromResult(res runner.Result) storage.RunRecord {
	rec := storage.RunRecord{
		ID:         res.ID,
		Task:       res.Task,
		Trigger:    string(res.Trigger.Kind),
		Schedule:   res.Trigger.Schedule,
		State:      string(res.State),
		FailedStep: string(res.FailedStep),
		ExitCode:   res.ExitCode,
		Revision:   res.Revision,
		Runtime:    res.RuntimeVersion,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		DurationMS: res.Duration().Milliseconds(),
		Error:      res.ErrText,
	}
	return rec
}
