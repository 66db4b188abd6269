package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var reEnvName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate performs structural checks that don't need other packages.
// Schedule syntax and command parsing are validated by their owners.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if c.TaskEngine.Workers < 0 {
		errs = append(errs, errors.New("task_engine.workers must be >= 0"))
	}
	if c.TaskEngine.QueueSize < 0 {
		errs = append(errs, errors.New("task_engine.queue_size must be >= 0"))
	}
	if c.TaskEngine.HistorySize < 0 {
		errs = append(errs, errors.New("task_engine.history_size must be >= 0"))
	}
	switch strings.ToLower(strings.TrimSpace(c.TaskEngine.Overlap)) {
	case "", "allow", "skip_if_running":
	default:
		errs = append(errs, fmt.Errorf("task_engine.overlap: unknown policy %q", c.TaskEngine.Overlap))
	}
	if _, err := ParseDurationField("task_engine.default_timeout", c.TaskEngine.DefaultTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("task_engine.max_queue_delay", c.TaskEngine.MaxQueueDelay); err != nil {
		errs = append(errs, err)
	}
	if _, err := LoadLocation(c.Scheduler.Timezone); err != nil {
		errs = append(errs, err)
	}

	if strings.TrimSpace(c.Task.Name) == "" {
		errs = append(errs, errors.New("task.name is required"))
	}
	if strings.TrimSpace(c.Task.Invoke.Command) == "" {
		errs = append(errs, errors.New("task.invoke.command is required"))
	}
	if _, err := ParseDurationField("task.timeout", c.Task.Timeout); err != nil {
		errs = append(errs, err)
	}
	if c.Scheduler.Enabled && len(c.Task.Schedules) == 0 {
		errs = append(errs, errors.New("task.schedules: at least one schedule is required when scheduler.enabled is true"))
	}
	if strings.TrimSpace(c.Task.Source.Repo) == "" && strings.TrimSpace(c.Task.Source.Revision) != "" {
		errs = append(errs, errors.New("task.source.revision requires task.source.repo"))
	}
	if strings.TrimSpace(c.Task.Runtime.Command) != "" && strings.TrimSpace(c.Task.Runtime.Version) == "" {
		errs = append(errs, errors.New("task.runtime.version is required when task.runtime.command is set"))
	}

	seen := map[string]string{}
	check := func(section string, names []string) {
		for _, n := range names {
			n = strings.TrimSpace(n)
			if !reEnvName.MatchString(n) {
				errs = append(errs, fmt.Errorf("%s: invalid variable name %q", section, n))
				continue
			}
			if prev, ok := seen[n]; ok {
				errs = append(errs, fmt.Errorf("%s: %q already declared in %s", section, n, prev))
				continue
			}
			seen[n] = section
		}
	}
	check("secrets.required", c.Secrets.Required)
	check("secrets.optional", c.Secrets.Optional)
	check("secrets.passthrough", c.Secrets.Passthrough)

	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(c.Storage.Path) == "" {
				errs = append(errs, errors.New("storage.path is required"))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
		if c.Storage.Keep < 0 {
			errs = append(errs, errors.New("storage.keep must be >= 0"))
		}
	}

	return errors.Join(errs...)
}
