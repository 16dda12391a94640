package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
)

// ErrPolicyDenied is returned when a plan contains a restricted call.
var ErrPolicyDenied = errors.New("PolicyDenied")

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of a tool call to be evaluated.
type Request struct {
	Tool      string
	Arguments string
	Source    string
}

// NewRequest flattens params into the argument string the deny patterns
// are matched against.
func NewRequest(tool string, params map[string]any, source string) Request {
	args, _ := json.Marshal(params)
	return Request{Tool: tool, Arguments: string(args), Source: source}
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// DeniedError carries the reason a request was refused.
type DeniedError struct {
	Tool   string
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("policy denied %s: %s", e.Tool, e.Reason)
}

func (e *DeniedError) Unwrap() error {
	return ErrPolicyDenied
}

// PolicyEngine evaluates tool calls against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultDeniedPatterns are argument patterns refused unless configured
// otherwise.
var DefaultDeniedPatterns = []string{
	`rm\s+-rf`,
	`\bmkfs\b`,
	`\bshutdown\b`,
	`\breboot\b`,
}

// DefaultPolicyEngine is a basic implementation of PolicyEngine.
type DefaultPolicyEngine struct {
	mu          sync.RWMutex
	DeniedTools map[string]bool
	DeniedRegex []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedTools: make(map[string]bool),
		DeniedRegex: make([]*regexp.Regexp, 0),
	}
}

// NewPolicyEngine builds an engine from configured deny lists.
func NewPolicyEngine(deniedTools, deniedPatterns []string) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, name := range deniedTools {
		e.DenyTool(name)
	}
	for _, p := range deniedPatterns {
		if err := e.DenyArguments(p); err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", p, err)
		}
	}
	return e, nil
}

func (e *DefaultPolicyEngine) DenyTool(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DeniedTools[name] = true
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.DeniedTools[req.Tool] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Tool '%s' is restricted by system policy", req.Tool),
		}, nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Arguments) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Arguments match restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}

// Check evaluates every request in order and returns a *DeniedError for the
// first one refused.
func Check(ctx context.Context, engine PolicyEngine, reqs []Request) error {
	for _, req := range reqs {
		res, err := engine.Evaluate(ctx, req)
		if err != nil {
			return err
		}
		if res.Effect == EffectDeny {
			return &DeniedError{Tool: req.Tool, Reason: res.Reason}
		}
	}
	return nil
}
