package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"satrunner/internal/task/engine"
	logx "satrunner/pkg/logx"
)

// Config controls the trigger side.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ; empty means UTC
}

// Enqueuer accepts triggered tasks. *engine.Service satisfies it.
type Enqueuer interface {
	Enqueue(t engine.Task) error
}

// Job is what one schedule fires.
type Job struct {
	// Task is the engine task name. Schedules that share it share overlap state.
	Task    string
	Timeout time.Duration
	Opt     engine.TaskOptions
	Run     func(ctx context.Context) error
}

type scheduleDef struct {
	name          string
	spec          string // cron spec or @every
	job           Job
	entryID       cron.EntryID
	startupSpread time.Duration
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	eng Enqueuer

	c    *cron.Cron
	defs []scheduleDef

	// Enqueue error throttling, keyed by schedule name.
	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

type ScheduleInfo struct {
	Name          string
	Task          string
	Spec          string
	Timeout       time.Duration
	StartupSpread time.Duration
	Next          time.Time
	Prev          time.Time
}

type Snapshot struct {
	Enabled   bool
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
}
