// Package agent ties planning, policy and execution together behind the
// single entry point every front end uses.
package agent

import (
	"context"
	"errors"
	"log"

	"github.com/rahul/orbit/internal/executor"
	"github.com/rahul/orbit/internal/governance"
	"github.com/rahul/orbit/internal/observability"
	"github.com/rahul/orbit/internal/planner"
	"github.com/rahul/orbit/internal/tools"
)

// ErrorKind names a rejected command the way API clients see it.
type ErrorKind string

const (
	KindUnparseable  ErrorKind = "UnparseableCommand"
	KindToolNotFound ErrorKind = "ToolNotFound"
	KindPolicyDenied ErrorKind = "PolicyDenied"
	KindUnavailable  ErrorKind = "Unavailable"
	KindInternal     ErrorKind = "InternalError"
)

// KindOf classifies an error returned by Plan or Submit.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, tools.ErrToolNotFound):
		return KindToolNotFound
	case errors.Is(err, planner.ErrUnparseableCommand):
		return KindUnparseable
	case errors.Is(err, governance.ErrPolicyDenied):
		return KindPolicyDenied
	case errors.Is(err, executor.ErrClosed):
		return KindUnavailable
	}
	return KindInternal
}

// SecurityLog receives policy decisions.
type SecurityLog interface {
	LogSecurity(runID, description, severity string, metadata map[string]any) error
}

// RejectionCounter counts commands refused before a run exists.
type RejectionCounter interface {
	RecordRejected(kind string)
}

type Agent struct {
	Planner  *planner.Planner
	Executor *executor.Executor
	Policy   governance.PolicyEngine
	Logger   *observability.Logger
	Security SecurityLog
	Rejects  RejectionCounter
}

// Plan previews the plan for command without running it.
func (a *Agent) Plan(command string) (planner.Plan, error) {
	return a.Planner.Parse(command)
}

// Submit plans command, checks it against policy and starts a run. The run
// id is returned as soon as the run exists; nothing has executed yet.
func (a *Agent) Submit(ctx context.Context, source, command string) (string, error) {
	if a.Logger != nil {
		a.Logger.LogCommand(source, command)
	}

	plan, err := a.Planner.Parse(command)
	if err != nil {
		a.reject(err)
		return "", err
	}

	if err := a.checkPolicy(ctx, source, plan); err != nil {
		a.reject(err)
		return "", err
	}

	runID, err := a.Executor.Submit(plan, source)
	if err != nil {
		a.reject(err)
		return "", err
	}
	if a.Logger != nil {
		a.Logger.LogPlan(source, runID, plan.Summary())
	}
	return runID, nil
}

// Run submits command and waits for the run to finish.
func (a *Agent) Run(ctx context.Context, source, command string) (executor.Run, error) {
	runID, err := a.Submit(ctx, source, command)
	if err != nil {
		return executor.Run{}, err
	}
	return a.Executor.Wait(ctx, runID)
}

func (a *Agent) checkPolicy(ctx context.Context, source string, plan planner.Plan) error {
	if a.Policy == nil {
		return nil
	}
	reqs := make([]governance.Request, 0, len(plan.Calls))
	for _, call := range plan.Calls {
		reqs = append(reqs, governance.NewRequest(call.Tool, call.Params, source))
	}
	err := governance.Check(ctx, a.Policy, reqs)

	var denied *governance.DeniedError
	if errors.As(err, &denied) {
		if a.Logger != nil {
			a.Logger.LogPolicy(source, denied.Tool, string(governance.EffectDeny), denied.Reason)
		}
		if a.Security != nil {
			meta := map[string]any{"source": source, "tool": denied.Tool, "command": plan.Command}
			if lerr := a.Security.LogSecurity("", denied.Reason, "warning", meta); lerr != nil {
				log.Printf("Warning: failed to record policy denial: %v", lerr)
			}
		}
	}
	return err
}

func (a *Agent) reject(err error) {
	if a.Rejects != nil {
		a.Rejects.RecordRejected(string(KindOf(err)))
	}
}
