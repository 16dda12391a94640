// Package planner turns one line of intent into an ordered plan of tool
// calls using a fixed, ordered table of pattern rules. The same command
// always produces the same plan.
package planner

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rahul/orbit/internal/tools"
)

var ErrUnparseableCommand = errors.New("UnparseableCommand")

// ParseError reports the clause that could not be resolved.
type ParseError struct {
	Clause string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Clause == "" {
		return fmt.Sprintf("cannot plan command: %v", e.Err)
	}
	return fmt.Sprintf("cannot plan %q: %v", e.Clause, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ToolCall is one resolved invocation. The tool implementation is bound at
// plan time so execution never goes back through a string lookup.
type ToolCall struct {
	Tool   string       `json:"tool"`
	Params tools.Params `json:"params"`
	impl   tools.Tool
}

// Impl returns the tool bound to this call.
func (c ToolCall) Impl() tools.Tool {
	return c.impl
}

// NewToolCall binds a call to an already-resolved tool.
func NewToolCall(t tools.Tool, params tools.Params) ToolCall {
	return ToolCall{Tool: t.Name(), Params: params, impl: t}
}

// Plan is the ordered list of calls for one command.
type Plan struct {
	Command string     `json:"command"`
	Calls   []ToolCall `json:"calls"`
}

func (p Plan) Len() int {
	return len(p.Calls)
}

// Summary is the plan in the shape carried by the run announcement event.
func (p Plan) Summary() []map[string]any {
	out := make([]map[string]any, 0, len(p.Calls))
	for _, c := range p.Calls {
		out = append(out, map[string]any{"tool": c.Tool, "params": c.Params})
	}
	return out
}

func (c ToolCall) String() string {
	args, _ := json.Marshal(c.Params)
	return fmt.Sprintf("%s %s", c.Tool, args)
}
