package tools

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultLauncher returns the platform command used to start an application
// by display name. The app name is appended as the final argument.
func DefaultLauncher() []string {
	if runtime.GOOS == "darwin" {
		return []string{"open", "-a"}
	}
	return []string{"gtk-launch"}
}

// appAliases maps lowercase spoken names to application display names.
var appAliases = map[string]string{
	"notion":     "Notion",
	"calculator": "Calculator",
	"finder":     "Finder",
	"safari":     "Safari",
	"chrome":     "Google Chrome",
	"firefox":    "Firefox",
	"vscode":     "Visual Studio Code",
	"code":       "Visual Studio Code",
	"terminal":   "Terminal",
	"xcode":      "Xcode",
	"slack":      "Slack",
	"discord":    "Discord",
	"spotify":    "Spotify",
	"notes":      "Notes",
	"mail":       "Mail",
	"calendar":   "Calendar",
}

// DisplayName resolves a spoken application name to the name the launcher
// expects. Unknown names are title-cased word by word.
func DisplayName(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if proper, ok := appAliases[key]; ok {
		return proper
	}
	words := strings.Fields(key)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

type OpenAppTool struct {
	Launcher []string
	Runner   CommandRunner
}

func NewOpenAppTool(launcher []string, runner CommandRunner) *OpenAppTool {
	if len(launcher) == 0 {
		launcher = DefaultLauncher()
	}
	return &OpenAppTool{Launcher: launcher, Runner: runner}
}

func (o *OpenAppTool) Name() string {
	return "open_app"
}

func (o *OpenAppTool) Description() string {
	return "Launch an application by its display name."
}

func (o *OpenAppTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "Application name, e.g. 'calculator' or 'Visual Studio Code'",
			},
		},
		"required": []string{"name"},
	}
}

func (o *OpenAppTool) Execute(ctx context.Context, params Params) Result {
	name := params.String("name")
	if strings.TrimSpace(name) == "" {
		return Failure(KindInvalidParams, "Could not open app: empty name")
	}
	display := DisplayName(name)

	args := append(append([]string{}, o.Launcher[1:]...), display)
	stdout, stderr, code, err := o.Runner.Run(ctx, o.Launcher[0], args...)
	if err != nil {
		detail := combinedOutput(stdout, stderr)
		if detail == "" {
			detail = err.Error()
		}
		if code == 127 {
			return Failure(KindExecution, "Could not open %s: launcher %s not available", name, o.Launcher[0])
		}
		return Failure(KindAppNotFound, "Could not open %s: %s", name, detail)
	}
	return Success(fmt.Sprintf("Opened %s", display), map[string]any{"app": display})
}
