// Package executor runs plans step by step and publishes every step
// transition to the hub.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rahul/orbit/internal/planner"
	"github.com/rahul/orbit/internal/steps"
	"github.com/rahul/orbit/internal/tools"
)

var ErrRunNotFound = errors.New("run not found")

// Publisher receives step events in emission order.
type Publisher interface {
	Publish(evt steps.Event)
}

// Recorder is told about run and step boundaries. Implementations must not
// block for long; they run on the executing goroutine.
type Recorder interface {
	RunStarted(r Run)
	StepStarted(r Run, s Step)
	StepFinished(r Run, s Step)
	RunFinished(r Run)
}

// Recorders fans boundary notifications out to each non-nil recorder.
func Recorders(rs ...Recorder) Recorder {
	var out multiRecorder
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multiRecorder []Recorder

func (m multiRecorder) RunStarted(r Run) {
	for _, rec := range m {
		rec.RunStarted(r)
	}
}

func (m multiRecorder) StepStarted(r Run, s Step) {
	for _, rec := range m {
		rec.StepStarted(r, s)
	}
}

func (m multiRecorder) StepFinished(r Run, s Step) {
	for _, rec := range m {
		rec.StepFinished(r, s)
	}
}

func (m multiRecorder) RunFinished(r Run) {
	for _, rec := range m {
		rec.RunFinished(r)
	}
}


type Options struct {
	Recorder Recorder
	// StepTimeout bounds a single tool call; zero leaves timeouts to the
	// tools themselves.
	StepTimeout time.Duration
	// Retain caps how many runs stay queryable, evicting the oldest finished
	// ones first. Zero keeps every run for the life of the process.
	Retain int
}

type runState struct {
	mu   sync.RWMutex
	run  Run
	done chan struct{}
}

func (s *runState) snapshot() Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run.clone()
}

func (s *runState) update(fn func(r *Run)) Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.run)
	return s.run.clone()
}

// Executor owns every run. Runs execute concurrently; steps inside one run
// execute strictly in plan order and the first failed step ends the run.
type Executor struct {
	hub      Publisher
	recorder Recorder
	timeout  time.Duration
	retain   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	runs     map[string]*runState
	order    []string
	closed   bool
	stepSeen time.Time
}

func New(hub Publisher, opts Options) *Executor {
	if opts.Recorder == nil {
		opts.Recorder = Recorders()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		hub:      hub,
		recorder: opts.Recorder,
		timeout:  opts.StepTimeout,
		retain:   opts.Retain,
		ctx:      ctx,
		cancel:   cancel,
		runs:     make(map[string]*runState),
	}
}

var ErrClosed = errors.New("executor is shut down")

// Submit creates a run for plan and starts it in the background. The run id
// is returned before the first step executes.
func (e *Executor) Submit(plan planner.Plan, source string) (string, error) {
	now := time.Now()
	run := Run{
		ID:        steps.NewRunID(),
		Command:   plan.Command,
		Source:    source,
		Status:    steps.RunPending,
		Steps:     make([]Step, len(plan.Calls)),
		CreatedAt: now,
	}
	for i, call := range plan.Calls {
		run.Steps[i] = Step{ID: i + 1, Tool: call.Tool, Params: call.Params, Status: steps.StatusQueued}
	}
	state := &runState{run: run, done: make(chan struct{})}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrClosed
	}
	e.runs[run.ID] = state
	e.order = append(e.order, run.ID)
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		defer close(state.done)
		e.execute(state, plan)
		e.prune()
	}()
	return run.ID, nil
}

func (e *Executor) execute(state *runState, plan planner.Plan) {
	run := state.update(func(r *Run) { r.Status = steps.RunRunning })
	runID := run.ID

	e.emit(runID, 0, steps.StatusQueued, fmt.Sprintf("Planned %d step(s)", len(plan.Calls)),
		map[string]any{"command": plan.Command, "plan": plan.Summary()})
	e.recorder.RunStarted(run)

	failed := false
	for i, call := range plan.Calls {
		stepID := i + 1
		e.emit(runID, stepID, steps.StatusQueued, fmt.Sprintf("Step %d: %s", stepID, call.Tool), nil)

		run = state.update(func(r *Run) {
			r.Steps[i].Status = steps.StatusRunning
			r.Steps[i].StartedAt = time.Now()
		})
		e.emit(runID, stepID, steps.StatusRunning, fmt.Sprintf("Running %s", call.Tool), nil)
		e.recorder.StepStarted(run, run.Steps[i])

		var result tools.Result
		if err := e.ctx.Err(); err != nil {
			log.Printf("Warning: run %s interrupted before step %d: %v", runID, stepID, err)
			result = tools.Failure(tools.KindInterrupted, "Interrupted by shutdown before %s started", call.Tool)
		} else {
			result = e.invoke(call)
		}

		status := steps.StatusOK
		if !result.OK {
			status = steps.StatusError
		}
		run = state.update(func(r *Run) {
			r.Steps[i].Status = status
			r.Steps[i].Message = result.Message
			r.Steps[i].Data = result.Data
			r.Steps[i].FinishedAt = time.Now()
		})
		e.emit(runID, stepID, status, result.Message, result.Data)
		e.recorder.StepFinished(run, run.Steps[i])

		if !result.OK {
			failed = true
			break
		}
	}

	final := steps.RunCompleted
	if failed {
		final = steps.RunFailed
	}
	run = state.update(func(r *Run) {
		r.Status = final
		r.FinishedAt = time.Now()
	})
	e.recorder.RunFinished(run)
}

// invoke calls the bound tool, under the step timeout if one is set. A
// panicking tool is reported as a failed step, never as a crashed run.
func (e *Executor) invoke(call planner.ToolCall) (result tools.Result) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if e.timeout > 0 {
		ctx, cancel = context.WithTimeout(e.ctx, e.timeout)
	} else {
		ctx, cancel = context.WithCancel(e.ctx)
	}
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Warning: tool %s panicked: %v", call.Tool, r)
			result = tools.Failure(tools.KindExecution, "%s failed: %v", call.Tool, r)
		}
	}()

	impl := call.Impl()
	if impl == nil {
		return tools.Failure(tools.KindExecution, "%s is not bound to an implementation", call.Tool)
	}
	result = impl.Execute(ctx, call.Params)
	if !result.OK && errors.Is(ctx.Err(), context.DeadlineExceeded) && e.ctx.Err() == nil {
		result = tools.Failure(tools.KindTimeout, "%s timed out after %s", call.Tool, e.timeout)
	}
	return result
}

// emit stamps and publishes one event. Timestamps never go backwards even
// if the wall clock does.
func (e *Executor) emit(runID string, stepID int, status steps.Status, message string, data map[string]any) {
	e.mu.Lock()
	ts := time.Now()
	if !ts.After(e.stepSeen) {
		ts = e.stepSeen.Add(time.Nanosecond)
	}
	e.stepSeen = ts
	e.mu.Unlock()

	e.hub.Publish(steps.Event{
		RunID:     runID,
		StepID:    stepID,
		Status:    status,
		Message:   message,
		Data:      data,
		Timestamp: ts,
	})
}

// prune drops the oldest finished runs beyond the retention limit.
func (e *Executor) prune() {
	if e.retain <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	excess := len(e.order) - e.retain
	if excess <= 0 {
		return
	}
	kept := e.order[:0]
	for _, id := range e.order {
		state := e.runs[id]
		if excess > 0 && state.snapshot().Status.Terminal() {
			delete(e.runs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	e.order = kept
}

// Get returns a snapshot of the run.
func (e *Executor) Get(runID string) (Run, error) {
	e.mu.RLock()
	state, ok := e.runs[runID]
	e.mu.RUnlock()
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return state.snapshot(), nil
}

// List returns snapshots of retained runs, newest first.
func (e *Executor) List() []Run {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Run, 0, len(e.order))
	for i := len(e.order) - 1; i >= 0; i-- {
		out = append(out, e.runs[e.order[i]].snapshot())
	}
	return out
}

// Active is the number of runs not yet finished.
func (e *Executor) Active() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	n := 0
	for _, state := range e.runs {
		if !state.snapshot().Status.Terminal() {
			n++
		}
	}
	return n
}

// Wait blocks until the run finishes or ctx is done.
func (e *Executor) Wait(ctx context.Context, runID string) (Run, error) {
	e.mu.RLock()
	state, ok := e.runs[runID]
	e.mu.RUnlock()
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	select {
	case <-state.done:
		return state.snapshot(), nil
	case <-ctx.Done():
		return state.snapshot(), ctx.Err()
	}
}

// Close cancels in-flight steps, which also kills any child processes they
// started, and waits for every run goroutine to return.
func (e *Executor) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}
