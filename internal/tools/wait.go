package tools

import (
	"context"
	"fmt"
	"time"
)

// WaitTool pauses a run for a fixed number of seconds.
type WaitTool struct{}

func NewWaitTool() *WaitTool {
	return &WaitTool{}
}

func (w *WaitTool) Name() string {
	return "wait"
}

func (w *WaitTool) Description() string {
	return "Pause for a number of seconds before the next step."
}

func (w *WaitTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"seconds": map[string]any{
				"type":        "integer",
				"minimum":     1,
				"maximum":     300,
				"description": "Seconds to wait",
			},
		},
		"required": []string{"seconds"},
	}
}

func (w *WaitTool) Execute(ctx context.Context, params Params) Result {
	d := time.Duration(params.Int("seconds")) * time.Second
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Failure(KindExecution, "wait interrupted: %v", ctx.Err())
	case <-timer.C:
		return Success(fmt.Sprintf("Waited %s", d), nil)
	}
}

// waitFor polls cond every interval until it holds or timeout expires. The
// timeout belongs to the tool; the executor never imposes one.
func waitFor(ctx context.Context, timeout, interval time.Duration, cond func() bool, what string, data map[string]any) Result {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		if cond() {
			return Success(fmt.Sprintf("Waited %s for %s", time.Since(start).Round(time.Millisecond), what), data)
		}
		select {
		case <-ctx.Done():
			return Failure(KindExecution, "interrupted while waiting for %s: %v", what, ctx.Err())
		case <-deadline.C:
			return Failure(KindTimeout, "timed out after %s waiting for %s", timeout, what)
		case <-ticker.C:
		}
	}
}
