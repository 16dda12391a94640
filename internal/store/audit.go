package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/rahul/orbit/internal/executor"
)

// EventType is the kind of audit record.
type EventType string

const (
	EventCommandStart    EventType = "command_start"
	EventStepStart       EventType = "step_start"
	EventStepComplete    EventType = "step_complete"
	EventCommandComplete EventType = "command_complete"
	EventError           EventType = "error"
	EventSecurity        EventType = "security"
)

// AuditEvent is one row of the audit trail.
type AuditEvent struct {
	ID           int64          `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	EventType    EventType      `json:"event_type"`
	RunID        string         `json:"run_id"`
	StepID       *int           `json:"step_id,omitempty"`
	Command      string         `json:"user_command,omitempty"`
	ToolName     string         `json:"tool_name,omitempty"`
	ToolArgs     map[string]any `json:"tool_args,omitempty"`
	Result       map[string]any `json:"result,omitempty"`
	Status       string         `json:"status,omitempty"`
	Message      string         `json:"message,omitempty"`
	ErrorDetails string         `json:"error_details,omitempty"`
	DurationMS   *float64       `json:"duration_ms,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Filter narrows Query. Zero fields match everything.
type Filter struct {
	RunID     string
	EventType EventType
	ToolName  string
	Status    string
	Since     time.Time
	Until     time.Time
	Limit     int
}

const DefaultQueryLimit = 100

// tsLayout is fixed width so stored timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Summary condenses the audit trail of one run.
type Summary struct {
	RunID           string    `json:"run_id"`
	Command         string    `json:"command"`
	Source          string    `json:"source,omitempty"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time,omitzero"`
	Status          string    `json:"status"`
	TotalSteps      int       `json:"total_steps"`
	SuccessfulSteps int       `json:"successful_steps"`
	FailedSteps     int       `json:"failed_steps"`
	ToolsUsed       []string  `json:"tools_used"`
	Errors          []string  `json:"errors"`
	DurationMS      float64   `json:"duration_ms,omitempty"`
}

// AuditStore keeps the audit trail in SQLite. The default DSN is an
// in-memory database, so the trail lives as long as the process.
type AuditStore struct {
	DB *sql.DB
}

func NewAuditStore(dsn string) (*AuditStore, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Every connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			event_type TEXT NOT NULL,
			run_id TEXT NOT NULL,
			step_id INTEGER,
			user_command TEXT,
			tool_name TEXT,
			tool_args TEXT,
			result TEXT,
			status TEXT,
			message TEXT,
			error_details TEXT,
			duration_ms REAL,
			metadata TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_run ON audit_events(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(event_type);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &AuditStore{DB: db}, nil
}

func (s *AuditStore) Close() error {
	return s.DB.Close()
}

// Append writes evt, stamping it if no timestamp is set.
func (s *AuditStore) Append(evt AuditEvent) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	query := `INSERT INTO audit_events
		(timestamp, event_type, run_id, step_id, user_command, tool_name, tool_args, result, status, message, error_details, duration_ms, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.DB.Exec(query,
		evt.Timestamp.UTC().Format(tsLayout),
		string(evt.EventType),
		evt.RunID,
		nullInt(evt.StepID),
		evt.Command,
		evt.ToolName,
		encodeJSON(evt.ToolArgs),
		encodeJSON(evt.Result),
		evt.Status,
		evt.Message,
		evt.ErrorDetails,
		nullFloat(evt.DurationMS),
		encodeJSON(evt.Metadata),
	)
	return err
}

func (s *AuditStore) LogCommandStart(runID, command string, metadata map[string]any) error {
	return s.Append(AuditEvent{EventType: EventCommandStart, RunID: runID, Command: command, Metadata: metadata})
}

func (s *AuditStore) LogStepStart(runID string, stepID int, tool string, args map[string]any) error {
	return s.Append(AuditEvent{
		EventType: EventStepStart,
		RunID:     runID,
		StepID:    &stepID,
		ToolName:  tool,
		ToolArgs:  args,
		Status:    "running",
	})
}

func (s *AuditStore) LogStepComplete(runID string, stepID int, tool, status, message string, result map[string]any, d time.Duration) error {
	ms := float64(d) / float64(time.Millisecond)
	return s.Append(AuditEvent{
		EventType:  EventStepComplete,
		RunID:      runID,
		StepID:     &stepID,
		ToolName:   tool,
		Status:     status,
		Message:    message,
		Result:     result,
		DurationMS: &ms,
	})
}

func (s *AuditStore) LogCommandComplete(runID, status, message string, totalSteps int, d time.Duration) error {
	ms := float64(d) / float64(time.Millisecond)
	return s.Append(AuditEvent{
		EventType:  EventCommandComplete,
		RunID:      runID,
		Status:     status,
		Message:    message,
		DurationMS: &ms,
		Metadata:   map[string]any{"total_steps": totalSteps},
	})
}

func (s *AuditStore) LogError(runID, details string, stepID *int, tool string) error {
	return s.Append(AuditEvent{
		EventType:    EventError,
		RunID:        runID,
		StepID:       stepID,
		ToolName:     tool,
		Status:       "error",
		ErrorDetails: details,
	})
}

// LogSecurity records a policy decision. Denied commands never get a run,
// so runID may be empty.
func (s *AuditStore) LogSecurity(runID, description, severity string, metadata map[string]any) error {
	meta := map[string]any{"severity": severity}
	for k, v := range metadata {
		meta[k] = v
	}
	return s.Append(AuditEvent{EventType: EventSecurity, RunID: runID, Message: description, Metadata: meta})
}

// Query returns matching events, newest first.
func (s *AuditStore) Query(f Filter) ([]AuditEvent, error) {
	var where []string
	var args []any
	add := func(clause string, v any) {
		where = append(where, clause)
		args = append(args, v)
	}
	if f.RunID != "" {
		add("run_id = ?", f.RunID)
	}
	if f.EventType != "" {
		add("event_type = ?", string(f.EventType))
	}
	if f.ToolName != "" {
		add("tool_name = ?", f.ToolName)
	}
	if f.Status != "" {
		add("status = ?", f.Status)
	}
	if !f.Since.IsZero() {
		add("timestamp >= ?", f.Since.UTC().Format(tsLayout))
	}
	if !f.Until.IsZero() {
		add("timestamp <= ?", f.Until.UTC().Format(tsLayout))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	query := `SELECT id, timestamp, event_type, run_id, step_id, user_command, tool_name, tool_args, result, status, message, error_details, duration_ms, metadata FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Summary builds the run summary, or reports false when the run left no
// audit trail.
func (s *AuditStore) Summary(runID string) (Summary, bool, error) {
	events, err := s.Query(Filter{RunID: runID, Limit: 10000})
	if err != nil {
		return Summary{}, false, err
	}
	if len(events) == 0 {
		return Summary{}, false, nil
	}

	sum := Summary{RunID: runID, Status: "unknown", ToolsUsed: []string{}, Errors: []string{}}
	seen := map[string]bool{}
	for i := len(events) - 1; i >= 0; i-- {
		evt := events[i]
		switch evt.EventType {
		case EventCommandStart:
			sum.Command = evt.Command
			sum.StartTime = evt.Timestamp
			if src, ok := evt.Metadata["source"].(string); ok {
				sum.Source = src
			}
			if sum.Status == "unknown" {
				sum.Status = "running"
			}
		case EventCommandComplete:
			sum.EndTime = evt.Timestamp
			sum.Status = evt.Status
			if evt.DurationMS != nil {
				sum.DurationMS = *evt.DurationMS
			}
		case EventStepComplete:
			sum.TotalSteps++
			if evt.Status == "ok" {
				sum.SuccessfulSteps++
			} else {
				sum.FailedSteps++
			}
			if evt.ToolName != "" && !seen[evt.ToolName] {
				seen[evt.ToolName] = true
				sum.ToolsUsed = append(sum.ToolsUsed, evt.ToolName)
			}
		case EventError:
			sum.Errors = append(sum.Errors, evt.ErrorDetails)
		}
	}
	return sum, true, nil
}

// RunStarted and the methods below let the store sit behind the executor
// as a Recorder.
func (s *AuditStore) RunStarted(r executor.Run) {
	meta := map[string]any{"source": r.Source, "planned_steps": len(r.Steps)}
	s.warn(s.LogCommandStart(r.ID, r.Command, meta))
}

func (s *AuditStore) StepStarted(r executor.Run, step executor.Step) {
	s.warn(s.LogStepStart(r.ID, step.ID, step.Tool, step.Params))
}

func (s *AuditStore) StepFinished(r executor.Run, step executor.Step) {
	s.warn(s.LogStepComplete(r.ID, step.ID, step.Tool, string(step.Status), step.Message, step.Data, step.Duration()))
	if failed := step.Data["error_kind"]; failed != nil {
		id := step.ID
		s.warn(s.LogError(r.ID, fmt.Sprintf("%v: %s", failed, step.Message), &id, step.Tool))
	}
}

func (s *AuditStore) RunFinished(r executor.Run) {
	done := 0
	for _, step := range r.Steps {
		if step.Status.Terminal() {
			done++
		}
	}
	msg := fmt.Sprintf("Completed %d of %d step(s)", done, len(r.Steps))
	if failed, ok := r.FailedStep(); ok {
		msg = fmt.Sprintf("Failed at step %d (%s): %s", failed.ID, failed.Tool, failed.Message)
	}
	s.warn(s.LogCommandComplete(r.ID, string(r.Status), msg, len(r.Steps), r.Duration()))
}

func (s *AuditStore) warn(err error) {
	if err != nil {
		log.Printf("Warning: failed to write audit event: %v", err)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (AuditEvent, error) {
	var evt AuditEvent
	var ts, eventType string
	var stepID sql.NullInt64
	var command, tool, status, message, details sql.NullString
	var toolArgs, result, metadata sql.NullString
	var duration sql.NullFloat64
	if err := row.Scan(&evt.ID, &ts, &eventType, &evt.RunID, &stepID, &command, &tool,
		&toolArgs, &result, &status, &message, &details, &duration, &metadata); err != nil {
		return AuditEvent{}, err
	}
	evt.Timestamp, _ = time.Parse(tsLayout, ts)
	evt.EventType = EventType(eventType)
	if stepID.Valid {
		id := int(stepID.Int64)
		evt.StepID = &id
	}
	if duration.Valid {
		d := duration.Float64
		evt.DurationMS = &d
	}
	evt.Command = command.String
	evt.ToolName = tool.String
	evt.Status = status.String
	evt.Message = message.String
	evt.ErrorDetails = details.String
	evt.ToolArgs = decodeJSON(toolArgs)
	evt.Result = decodeJSON(result)
	evt.Metadata = decodeJSON(metadata)
	return evt, nil
}

func encodeJSON(v map[string]any) any {
	if len(v) == 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(data)
}

func decodeJSON(s sql.NullString) map[string]any {
	if !s.Valid || s.String == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil
	}
	return out
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
