package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rahul/orbit/internal/executor"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeCommand     EventType = "command"
	EventTypePlan        EventType = "plan"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeStep        EventType = "step"
	EventTypeRun         EventType = "run"
	EventTypeObserver    EventType = "observer"
	EventTypeHeartbeat   EventType = "heartbeat"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	Source    string    `json:"source,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	mu      sync.Mutex
	out     io.Writer
	path    string
	maxSize int64
}

// NewLogger writes JSON lines to out and, when path is set, appends them to
// a rotated jsonl file as well.
func NewLogger(out io.Writer, path string) *Logger {
	if out == nil {
		out = os.Stdout
	}
	return &Logger{
		out:     out,
		path:    path,
		maxSize: 10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Fprintf(l.out, "{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))

	if l.path != "" {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.path)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.path + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.path, oldPath)
}

// Helper methods for common events

func (l *Logger) LogCommand(source, command string) {
	l.Log(Event{
		Type:   EventTypeCommand,
		Source: source,
		Data:   map[string]string{"command": command},
	})
}

func (l *Logger) LogPlan(source, runID string, plan any) {
	l.Log(Event{
		Type:   EventTypePlan,
		Source: source,
		RunID:  runID,
		Data:   plan,
	})
}

func (l *Logger) LogPolicy(source, tool, effect, reason string) {
	l.Log(Event{
		Type:   EventTypePolicyCheck,
		Source: source,
		Data: map[string]string{
			"tool":   tool,
			"effect": effect,
			"reason": reason,
		},
	})
}

func (l *Logger) LogObserver(action string, observers int) {
	l.Log(Event{
		Type: EventTypeObserver,
		Data: map[string]any{"action": action, "observers": observers},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

// The Recorder methods log run and step boundaries.

func (l *Logger) RunStarted(r executor.Run) {
	SetActive(r.ID, r.Command)
	l.Log(Event{
		Type:   EventTypeRun,
		Source: r.Source,
		RunID:  r.ID,
		Data: map[string]any{
			"status":  r.Status,
			"command": r.Command,
			"steps":   len(r.Steps),
		},
	})
}

func (l *Logger) StepStarted(r executor.Run, s executor.Step) {
	l.Log(Event{
		Type:   EventTypeStep,
		Source: r.Source,
		RunID:  r.ID,
		Data: map[string]any{
			"step_id": s.ID,
			"tool":    s.Tool,
			"params":  s.Params,
			"status":  s.Status,
		},
	})
}

func (l *Logger) StepFinished(r executor.Run, s executor.Step) {
	l.Log(Event{
		Type:   EventTypeStep,
		Source: r.Source,
		RunID:  r.ID,
		Data: map[string]any{
			"step_id":     s.ID,
			"tool":        s.Tool,
			"status":      s.Status,
			"message":     s.Message,
			"duration_ms": s.Duration().Milliseconds(),
		},
	})
}

func (l *Logger) RunFinished(r executor.Run) {
	ClearActive(r.ID)
	l.Log(Event{
		Type:   EventTypeRun,
		Source: r.Source,
		RunID:  r.ID,
		Data: map[string]any{
			"status":      r.Status,
			"duration_ms": r.Duration().Milliseconds(),
		},
	})
}
