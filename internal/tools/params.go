package tools

import (
	"fmt"
	"math"
)

// Params holds the validated arguments of one tool call. Values are
// string, int, bool or []string.
type Params map[string]any

func (p Params) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// StringOr returns the string at key, or def when absent or empty.
func (p Params) StringOr(key, def string) string {
	if s := p.String(key); s != "" {
		return s
	}
	return def
}

func (p Params) Int(key string) int {
	n, _ := asInt(p[key])
	return n
}

func (p Params) IntOr(key string, def int) int {
	if n, ok := asInt(p[key]); ok {
		return n
	}
	return def
}

func (p Params) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// asInt accepts the integer shapes produced by the planner and by JSON decoding.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}

// Kind classifies a failed tool result.
type Kind string

const (
	KindAppNotFound   Kind = "AppNotFound"
	KindFilesystem    Kind = "FilesystemError"
	KindExecution     Kind = "ToolExecutionError"
	KindTimeout       Kind = "Timeout"
	KindInvalidParams Kind = "InvalidParams"
	// KindInterrupted is reported by the executor, never by a tool.
	KindInterrupted Kind = "Interrupted"
)

// Result is what every tool returns. Tools never return Go errors; every
// failure is converted into a Result with OK=false.
type Result struct {
	OK      bool           `json:"ok"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func Success(message string, data map[string]any) Result {
	return Result{OK: true, Message: message, Data: data}
}

func Failure(kind Kind, format string, args ...any) Result {
	return Result{
		OK:      false,
		Message: fmt.Sprintf(format, args...),
		Data:    map[string]any{"error_kind": string(kind)},
	}
}

// FailureKind reports the Kind recorded by Failure, if any.
func (r Result) FailureKind() Kind {
	if r.OK || r.Data == nil {
		return ""
	}
	k, _ := r.Data["error_kind"].(string)
	return Kind(k)
}
