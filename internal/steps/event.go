// Package steps holds the step/run lifecycle vocabulary and the hub that fans
// step events out to observers.
package steps

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of one step.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusOK      Status = "ok"
	StatusError   Status = "error"
)

// Terminal reports whether no further transition can follow.
func (s Status) Terminal() bool {
	return s == StatusOK || s == StatusError
}

// CanTransition reports whether from → to is a legal step transition:
// queued → running → ok|error, never skipping a state.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusOK || to == StatusError
	}
	return false
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Event is an immutable record of one step transition. StepID 0 is reserved
// for the run-level announcement that carries the plan.
type Event struct {
	RunID     string         `json:"run_id"`
	StepID    int            `json:"step_id"`
	Status    Status         `json:"status"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewRunID returns an opaque unique run identifier.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
