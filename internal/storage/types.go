package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": <path without ext>.runs.jsonl
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// Keep bounds the file driver's history. 0 means 5000.
	Keep int
}

// RunRecord is the persisted outcome of one run. It never holds secret values.
type RunRecord struct {
	ID         string    `json:"id"`
	Task       string    `json:"task"`
	Trigger    string    `json:"trigger"`
	Schedule   string    `json:"schedule,omitempty"`
	State      string    `json:"state"`
	FailedStep string    `json:"failed_step,omitempty"`
	ExitCode   int       `json:"exit_code"`
	Error      string    `json:"error,omitempty"`
	Revision   string    `json:"revision,omitempty"`
	Runtime    string    `json:"runtime,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`
}
