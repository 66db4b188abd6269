package config

// Config is the on-disk runner configuration (JSON or YAML).
//
// It never holds secret values: the secrets section only declares names and
// where values come from at run time.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls execution settings for triggered runs.
	TaskEngine TaskEngineConfig `json:"task_engine"`

	Task    TaskConfig     `json:"task"`
	Secrets SecretsConfig  `json:"secrets"`
	Storage *StorageConfig `json:"storage,omitempty"`
	Metrics *MetricsConfig `json:"metrics,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the trigger side.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Trigger timezone (IANA name). Empty means UTC.
	Timezone string `json:"timezone,omitempty"`
}

// TaskEngineConfig controls the execution engine.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 16
//   - default_timeout: "0s" (disabled)
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 200
//   - overlap: "allow"
type TaskEngineConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`

	DefaultTimeout string `json:"default_timeout,omitempty"`

	// MaxQueueDelay drops runs that waited in the queue longer than this.
	MaxQueueDelay string `json:"max_queue_delay,omitempty"`

	HistorySize int `json:"history_size,omitempty"`

	// Overlap is "allow" or "skip_if_running".
	Overlap string `json:"overlap,omitempty"`
}

// TaskConfig describes the single task this runner owns.
type TaskConfig struct {
	Name string `json:"name"`

	// Schedules are cron expressions (or interval forms); each one is a trigger.
	Schedules []string `json:"schedules"`

	// Timeout bounds a whole run. Empty falls back to task_engine.default_timeout.
	Timeout string `json:"timeout,omitempty"`

	// WorkRoot is the parent directory for per-run workspaces.
	WorkRoot string `json:"work_root,omitempty"`
	// KeepWorkspace leaves the per-run workspace on disk after the run.
	KeepWorkspace bool `json:"keep_workspace,omitempty"`

	Source  SourceConfig  `json:"source"`
	Runtime RuntimeConfig `json:"runtime"`
	Install InstallConfig `json:"install"`
	Invoke  InvokeConfig  `json:"invoke"`

	// DiagnoseSecrets enables the advisory secret presence report before invoke.
	DiagnoseSecrets bool `json:"diagnose_secrets"`
}

// SourceConfig selects where the task source comes from.
//
// With Repo set, every run clones Repo at Revision into a fresh workspace.
// Without Repo, Dir is used in place.
type SourceConfig struct {
	Repo     string `json:"repo,omitempty"`
	Revision string `json:"revision,omitempty"`
	Dir      string `json:"dir,omitempty"`
}

// RuntimeConfig pins the language runtime. Empty Command skips the step.
type RuntimeConfig struct {
	Command     string   `json:"command,omitempty"`
	VersionArgs []string `json:"version_args,omitempty"`
	// Version is a "major.minor" pin (e.g. "3.11") or any semver constraint.
	Version string `json:"version,omitempty"`
}

// InstallConfig declares the dependency install step. Empty Command skips it.
type InstallConfig struct {
	Command  string `json:"command,omitempty"`
	Manifest string `json:"manifest,omitempty"`
}

// InvokeConfig is the one external executable a run invokes.
type InvokeConfig struct {
	Command string `json:"command"`
	// Dir is relative to the source directory.
	Dir string `json:"dir,omitempty"`
}

// SecretsConfig declares the secret environment handed to the invoked executable.
//
// Required and Optional are names only. Values come from the process
// environment and, optionally, from File (YAML/JSON map). Environment wins.
type SecretsConfig struct {
	Required []string `json:"required,omitempty"`
	Optional []string `json:"optional,omitempty"`
	File     string   `json:"file,omitempty"`

	// Passthrough lists non-secret host variables (PATH, HOME, ...) the
	// invoked process also receives.
	Passthrough []string `json:"passthrough,omitempty"`
}

// StorageConfig controls run history persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/runs.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	// Keep bounds the file driver's history (oldest records are compacted away). 0 means 5000.
	Keep int `json:"keep,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9464"
	// Pprof also mounts net/http/pprof under /debug/pprof/ on the same listener.
	Pprof bool `json:"pprof,omitempty"`
}
