package runner

import (
	"errors"
	"fmt"
	"time"

	"satrunner/internal/secrets"
)

type TriggerKind string

const (
	TriggerSchedule TriggerKind = "schedule"
	TriggerManual   TriggerKind = "manual"
)

// Trigger is the event that started a Run.
type Trigger struct {
	Kind     TriggerKind
	Schedule string // the firing schedule spec; empty for manual
	At       time.Time
}

func Manual() Trigger { return Trigger{Kind: TriggerManual, At: time.Now()} }

func Scheduled(spec string) Trigger {
	return Trigger{Kind: TriggerSchedule, Schedule: spec, At: time.Now()}
}

type State string

const (
	StateNotStarted   State = "not_started"
	StateProvisioning State = "provisioning"
	StateRunning      State = "running"
	StateSucceeded    State = "succeeded"
	StateFailed       State = "failed"
)

func (s State) Terminal() bool { return s == StateSucceeded || s == StateFailed }

type Step string

const (
	StepSecrets   Step = "secrets"
	StepCheckout  Step = "checkout"
	StepProvision Step = "provision"
	StepInstall   Step = "install"
	StepDiagnose  Step = "diagnose"
	StepInvoke    Step = "invoke"
)

var (
	ErrSecrets   = errors.New("secret resolution failed")
	ErrCheckout  = errors.New("checkout failed")
	ErrProvision = errors.New("runtime provisioning failed")
	ErrInstall   = errors.New("dependency install failed")
	ErrInvoke    = errors.New("invoked process failed")
)

// ExitError carries a child process exit code.
type ExitError struct {
	Step Step
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: exit code %d: %v", e.Step, e.Code, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Result is the outcome of one Run. It holds no secret values.
type Result struct {
	ID      string
	Task    string
	Trigger Trigger
	State   State

	FailedStep Step
	// ExitCode is 0 on success, the invoked process code when it exited
	// non-zero, and 1 for any other failure.
	ExitCode int
	Err      error
	// ErrText is Err with secret values masked, safe to log and persist.
	ErrText string

	Revision       string
	RuntimeVersion string
	Secrets        []secrets.Presence

	StartedAt  time.Time
	FinishedAt time.Time
}

func (r Result) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

func (r Result) Succeeded() bool { return r.State == StateSucceeded }

// StepEvent is published on the bus for every step transition.
type StepEvent struct {
	RunID    string        `json:"run_id"`
	Task     string        `json:"task"`
	Step     Step          `json:"step"`
	Status   string        `json:"status"` // started | ok | skipped | failed
	State    State         `json:"state"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// RunEvent is published once per Run, when it reaches a terminal state.
type RunEvent struct {
	RunID      string        `json:"run_id"`
	Task       string        `json:"task"`
	Trigger    TriggerKind   `json:"trigger"`
	State      State         `json:"state"`
	FailedStep Step          `json:"failed_step,omitempty"`
	ExitCode   int           `json:"exit_code"`
	Duration   time.Duration `json:"duration"`
}
