package executor

import (
	"maps"
	"time"

	"github.com/rahul/orbit/internal/steps"
	"github.com/rahul/orbit/internal/tools"
)

// Step is the record of one tool call inside a run.
type Step struct {
	ID         int            `json:"step_id"`
	Tool       string         `json:"tool"`
	Params     tools.Params   `json:"params"`
	Status     steps.Status   `json:"status"`
	Message    string         `json:"message,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	StartedAt  time.Time      `json:"started_at,omitzero"`
	FinishedAt time.Time      `json:"finished_at,omitzero"`
}

// Duration is how long the step ran, zero until it finishes.
func (s Step) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Run is a snapshot of one command's execution.
type Run struct {
	ID         string          `json:"run_id"`
	Command    string          `json:"command"`
	Source     string          `json:"source"`
	Status     steps.RunStatus `json:"status"`
	Steps      []Step          `json:"steps"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt time.Time       `json:"finished_at,omitzero"`
}

func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.CreatedAt)
}

// FailedStep returns the step that ended the run, if any.
func (r Run) FailedStep() (Step, bool) {
	for _, s := range r.Steps {
		if s.Status == steps.StatusError {
			return s, true
		}
	}
	return Step{}, false
}

func (r Run) clone() Run {
	out := r
	out.Steps = make([]Step, len(r.Steps))
	for i, s := range r.Steps {
		s.Params = maps.Clone(s.Params)
		s.Data = maps.Clone(s.Data)
		out.Steps[i] = s
	}
	return out
}
