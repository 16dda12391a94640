package planner

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rahul/orbit/internal/tools"
)

// Planner maps a command onto tool calls. It holds no mutable state and is
// safe for concurrent use.
type Planner struct {
	registry *tools.Registry
	rules    []Rule
}

func New(registry *tools.Registry) *Planner {
	return &Planner{registry: registry, rules: DefaultRules}
}

// WithRules returns a planner that uses rules instead of DefaultRules.
func WithRules(registry *tools.Registry, rules []Rule) *Planner {
	return &Planner{registry: registry, rules: rules}
}

var (
	clauseSep    = regexp.MustCompile(`(?i)\s*;\s*|,?\s+(?:and\s+then|then|and)\s+`)
	politePrefix = regexp.MustCompile(`(?i)^(?:please|can\s+you|could\s+you)\s+`)
)

// Parse plans the whole command or nothing. Clauses are resolved in order
// and the first clause that matches no rule, names an unknown tool, or
// yields invalid params fails the plan.
func (p *Planner) Parse(command string) (Plan, error) {
	clauses := SplitClauses(command)
	if len(clauses) == 0 {
		return Plan{}, &ParseError{Err: fmt.Errorf("%w: empty command", ErrUnparseableCommand)}
	}

	plan := Plan{Command: strings.TrimSpace(command), Calls: make([]ToolCall, 0, len(clauses))}
	for _, clause := range clauses {
		call, err := p.resolve(clause)
		if err != nil {
			return Plan{}, err
		}
		plan.Calls = append(plan.Calls, call)
	}
	return plan, nil
}

func (p *Planner) resolve(clause string) (ToolCall, error) {
	if clause == "" {
		return ToolCall{}, &ParseError{Clause: clause, Err: fmt.Errorf("%w: empty clause", ErrUnparseableCommand)}
	}
	text := politePrefix.ReplaceAllString(clause, "")

	for _, r := range p.rules {
		name, params, ok := r.Match(text)
		if !ok {
			continue
		}
		t, err := p.registry.Resolve(name, params)
		switch {
		case err == nil:
			return NewToolCall(t, params), nil
		case errors.Is(err, tools.ErrToolNotFound):
			return ToolCall{}, &ParseError{Clause: clause, Err: err}
		default:
			return ToolCall{}, &ParseError{Clause: clause, Err: fmt.Errorf("%w: %w", ErrUnparseableCommand, err)}
		}
	}
	return ToolCall{}, &ParseError{Clause: clause, Err: fmt.Errorf("%w: no rule matches", ErrUnparseableCommand)}
}

// SplitClauses breaks a command on sequencing words ("and then", "then",
// "and", ";") that fall outside quotes. Clauses are trimmed of whitespace
// and trailing punctuation, and a trailing separator adds no clause. A
// command with no content yields nil.
func SplitClauses(command string) []string {
	command = strings.TrimRight(strings.TrimSpace(command), " \t\r\n.,!?;")
	if command == "" {
		return nil
	}

	var clauses []string
	start := 0
	for _, loc := range clauseSep.FindAllStringIndex(command, -1) {
		if insideQuotes(command[:loc[0]]) {
			continue
		}
		clauses = append(clauses, cleanClause(command[start:loc[0]]))
		start = loc[1]
	}
	clauses = append(clauses, cleanClause(command[start:]))
	return clauses
}

func cleanClause(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ",.!? ")
}

func insideQuotes(prefix string) bool {
	return strings.Count(prefix, `"`)%2 == 1
}
