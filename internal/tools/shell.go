package tools

import (
	"context"
	"strings"
)

// maxShellOutput caps the output carried in a step event.
const maxShellOutput = 4096

// ShellTool runs a command line through the user's shell. It is only
// registered when explicitly enabled; the policy engine's argument patterns
// still apply to every command it receives.
type ShellTool struct {
	Shell  string
	Runner CommandRunner
}

func NewShellTool(runner CommandRunner) *ShellTool {
	return &ShellTool{Shell: "bash", Runner: runner}
}

func (s *ShellTool) Name() string {
	return "shell"
}

func (s *ShellTool) Description() string {
	return "Execute a shell command line. Use with caution. Access to full shell environment."
}

func (s *ShellTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute",
			},
		},
		"required": []string{"command"},
	}
}

func (s *ShellTool) Execute(ctx context.Context, params Params) Result {
	command := strings.TrimSpace(params.String("command"))
	if command == "" {
		return Failure(KindInvalidParams, "Error: empty command")
	}

	stdout, stderr, code, err := s.Runner.Run(ctx, s.Shell, "-c", command)
	output := truncate(combinedOutput(stdout, stderr), maxShellOutput)
	if output == "" {
		output = "(no output)"
	}
	if err != nil {
		return Failure(KindExecution, "Command failed (exit %d): %s", code, output)
	}
	return Success(output, map[string]any{"output": output, "exit_code": code})
}
