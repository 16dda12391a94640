package gateway

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/orbit/internal/executor"
	"github.com/rahul/orbit/internal/steps"
)

type chatMessage struct {
	chatID string
	text   string
}

func newBridge(t *testing.T) (*Bridge, *fixture, chan chatMessage) {
	t.Helper()
	f := newFixture(t, nil)
	sent := make(chan chatMessage, 32)
	b := &Bridge{
		Agent:    f.agent,
		Hub:      f.hub,
		Registry: f.registry,
		Source:   "test",
		Send: func(chatID, text string) error {
			sent <- chatMessage{chatID, text}
			return nil
		},
	}
	return b, f, sent
}

func next(t *testing.T, sent chan chatMessage) chatMessage {
	t.Helper()
	select {
	case m := <-sent:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("no chat message")
		return chatMessage{}
	}
}

func TestBridge_RelaysRun(t *testing.T) {
	b, f, sent := newBridge(t)

	b.Handle(context.Background(), "42", "create 2 files in documents")

	announce := next(t, sent)
	assert.Equal(t, "42", announce.chatID)
	assert.Contains(t, announce.text, "Planned 1 step(s)")

	step := next(t, sent)
	assert.True(t, strings.HasPrefix(step.text, "[1] ok: Created 2 file(s)"), step.text)

	final := next(t, sent)
	assert.Contains(t, final.text, "completed: 1 step(s)")

	runs := f.agent.Executor.List()
	require.Len(t, runs, 1)
	assert.Equal(t, "test", runs[0].Source)
	require.Eventually(t, func() bool { return f.hub.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestBridge_SummaryAfterEviction(t *testing.T) {
	b, f, sent := newBridge(t)

	sub := f.hub.Subscribe()
	f.hub.Unsubscribe(sub)
	runID, err := f.agent.Submit(context.Background(), "test", "create 2 files in documents")
	require.NoError(t, err)

	b.follow(context.Background(), "42", runID, sub)

	final := next(t, sent)
	assert.Equal(t, "42", final.chatID)
	assert.Contains(t, final.text, "completed: 1 step(s)")
}

func TestBridge_Rejects(t *testing.T) {
	b, f, sent := newBridge(t)

	b.Handle(context.Background(), "42", "frobnicate the whatsit")

	msg := next(t, sent)
	assert.True(t, strings.HasPrefix(msg.text, "Rejected (UnparseableCommand)"), msg.text)
	assert.Empty(t, f.agent.Executor.List())
	assert.Equal(t, 0, f.hub.Len())
}

func TestBridge_Commands(t *testing.T) {
	b, f, sent := newBridge(t)

	b.Handle(context.Background(), "1", "/help")
	assert.Equal(t, chatHelp, next(t, sent).text)

	b.Handle(context.Background(), "1", "/tools")
	list := next(t, sent).text
	assert.Contains(t, list, "- create_files:")
	assert.Empty(t, f.agent.Executor.List())
}

func TestFormatRun(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	run := executor.Run{
		ID:        "0123456789abcdef",
		Status:    steps.RunFailed,
		CreatedAt: start,
		Steps: []executor.Step{
			{ID: 1, Tool: "create_files", Status: steps.StatusOK},
			{ID: 2, Tool: "open_app", Status: steps.StatusError},
		},
		FinishedAt: start.Add(1500 * time.Millisecond),
	}
	assert.Equal(t, "Run 01234567 failed at step 2 (open_app) after 1.5s", FormatRun(run))

	run.Status = steps.RunCompleted
	run.Steps[1].Status = steps.StatusOK
	assert.Equal(t, "Run 01234567 completed: 2 step(s) in 1.5s", FormatRun(run))
}

func TestClipMessage(t *testing.T) {
	assert.Equal(t, "short", clipMessage("short", 10))

	clipped := clipMessage(strings.Repeat("é", 12), 10)
	assert.Equal(t, strings.Repeat("é", 7)+"...", clipped)
	assert.True(t, utf8.ValidString(clipped))
}
