package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/rahul/orbit/internal/agent"
	"github.com/rahul/orbit/internal/executor"
	"github.com/rahul/orbit/internal/steps"
	"github.com/rahul/orbit/internal/tools"
)

const chatHelp = `Send a command, for example:
  create 3 files in documents
  open notion then wait 2 seconds
/tools lists what I can do.`

// Bridge turns chat messages into runs and relays each run's step events
// back to the chat it came from.
type Bridge struct {
	Agent    *agent.Agent
	Hub      *steps.Hub
	Registry *tools.Registry
	Source   string
	Send     func(chatID, text string) error
}

// Handle treats text as one command. It returns once the run is accepted
// or rejected; progress is relayed from a separate goroutine until the run
// ends or ctx is cancelled.
func (b *Bridge) Handle(ctx context.Context, chatID, text string) {
	text = strings.TrimSpace(text)
	switch text {
	case "", "/start", "/help":
		b.reply(chatID, chatHelp)
		return
	case "/tools":
		b.reply(chatID, b.toolList())
		return
	}

	// Subscribe first so the run-level announcement is not missed.
	sub := b.Hub.Subscribe()
	runID, err := b.Agent.Submit(ctx, b.Source, text)
	if err != nil {
		b.Hub.Unsubscribe(sub)
		b.reply(chatID, fmt.Sprintf("Rejected (%s): %v", agent.KindOf(err), err))
		return
	}
	go b.follow(ctx, chatID, runID, sub)
}

func (b *Bridge) follow(ctx context.Context, chatID, runID string, sub *steps.Subscription) {
	defer b.Hub.Unsubscribe(sub)

	done := make(chan executor.Run, 1)
	go func() {
		defer close(done)
		if run, err := b.Agent.Executor.Wait(ctx, runID); err == nil {
			done <- run
		}
	}()

	events := sub.Events()
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				// Evicted by the hub; the summary still follows.
				events = nil
				continue
			}
			b.relay(chatID, runID, evt)
		case run, ok := <-done:
			// Every event of a finished run is already queued.
			b.drain(chatID, runID, sub)
			if ok {
				b.reply(chatID, FormatRun(run))
			}
			return
		}
	}
}

func (b *Bridge) drain(chatID, runID string, sub *steps.Subscription) {
	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			b.relay(chatID, runID, evt)
		default:
			return
		}
	}
}

// relay forwards announcements and terminal step events; queued and
// running transitions would only add noise to a chat.
func (b *Bridge) relay(chatID, runID string, evt steps.Event) {
	if evt.RunID != runID {
		return
	}
	if evt.StepID == 0 || evt.Status.Terminal() {
		b.reply(chatID, FormatEvent(evt))
	}
}

func (b *Bridge) reply(chatID, text string) {
	if b.Send == nil {
		return
	}
	if err := b.Send(chatID, text); err != nil {
		log.Printf("Warning: %s reply to %s failed: %v", b.Source, chatID, err)
	}
}

func (b *Bridge) toolList() string {
	if b.Registry == nil {
		return "No tools registered."
	}
	var sb strings.Builder
	sb.WriteString("Tools:\n")
	for _, d := range b.Registry.Describe() {
		fmt.Fprintf(&sb, "- %s: %s\n", d.Name, d.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatEvent renders one step event as a chat line.
func FormatEvent(evt steps.Event) string {
	if evt.StepID == 0 {
		return fmt.Sprintf("Run %s: %s", shortID(evt.RunID), evt.Message)
	}
	return fmt.Sprintf("[%d] %s: %s", evt.StepID, evt.Status, evt.Message)
}

// FormatRun renders the outcome of a finished run.
func FormatRun(run executor.Run) string {
	if step, ok := run.FailedStep(); ok {
		return fmt.Sprintf("Run %s failed at step %d (%s) after %s",
			shortID(run.ID), step.ID, step.Tool, run.Duration().Round(time.Millisecond))
	}
	return fmt.Sprintf("Run %s %s: %d step(s) in %s",
		shortID(run.ID), run.Status, len(run.Steps), run.Duration().Round(time.Millisecond))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
