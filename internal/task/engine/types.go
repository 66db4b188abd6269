package engine

import (
	"context"
	"sync"
	"time"
)

// Config controls the task execution engine.
//
// The scheduler only triggers; execution settings belong here.
// The app layer maps config.task_engine into this struct.
type Config struct {
	Enabled   bool
	Workers   int
	QueueSize int

	// DefaultTimeout is used when Task.Timeout is 0.
	DefaultTimeout time.Duration

	// MaxQueueDelay drops tasks that have been queued longer than this duration.
	// 0 disables stale-queue dropping.
	MaxQueueDelay time.Duration

	HistorySize int

	// Overlap is the default policy for tasks that don't set one.
	Overlap OverlapPolicy
}

type OverlapPolicy int

const (
	OverlapDefault OverlapPolicy = iota
	OverlapAllow
	OverlapSkipIfRunning
)

// ParseOverlap maps the config string. Empty and unknown values mean allow.
func ParseOverlap(s string) OverlapPolicy {
	if s == "skip_if_running" {
		return OverlapSkipIfRunning
	}
	return OverlapAllow
}

func (p OverlapPolicy) String() string {
	switch p {
	case OverlapSkipIfRunning:
		return "skip_if_running"
	case OverlapAllow:
		return "allow"
	default:
		return "default"
	}
}

type TaskOptions struct {
	Overlap OverlapPolicy
}

func (o TaskOptions) withDefaults(cfg Config) TaskOptions {
	if o.Overlap == OverlapDefault {
		o.Overlap = cfg.Overlap
	}
	if o.Overlap != OverlapSkipIfRunning {
		o.Overlap = OverlapAllow
	}
	return o
}

// RunState tracks whether a task is already in-flight.
// SkipIfRunning means "skip if running OR already queued", which keeps the
// queue from filling when triggers fire faster than runs finish.
type RunState struct {
	mu       sync.Mutex
	inflight int
}

func (s *RunState) tryAcquire() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		return false
	}
	s.inflight++
	return true
}

func (s *RunState) release() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.mu.Unlock()
}

type HistoryItem struct {
	ID         string
	Name       string
	Started    time.Time
	QueueDelay time.Duration
	Duration   time.Duration
	Error      string
}

// TaskEvent is emitted on the event bus for task lifecycle events.
type TaskEvent struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// Task is a unit of work executed by the engine. It runs exactly once.
type Task struct {
	ID      string
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
	Opt     TaskOptions

	// State gates overlap; nil uses a per-name state owned by the engine.
	State *RunState
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Enabled  bool
	Workers  int
	QueueLen int
	QueueCap int
	InFlight int

	Dropped          uint64
	DroppedQueueFull uint64
	DroppedStale     uint64
	Skipped          uint64

	DefaultTimeout time.Duration
	MaxQueueDelay  time.Duration
	Overlap        string

	History []HistoryItem
}
