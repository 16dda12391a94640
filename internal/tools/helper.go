package tools

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// HelperTool invokes the external platform-automation executable. Only its
// exit status and output matter.
type HelperTool struct {
	Path   string
	Runner CommandRunner
}

func NewHelperTool(path string, runner CommandRunner) *HelperTool {
	return &HelperTool{Path: path, Runner: runner}
}

func (h *HelperTool) Name() string {
	return "helper"
}

func (h *HelperTool) Description() string {
	return "Invoke the platform automation helper with the given arguments (focus-app, run-applescript, click-menu, check-ax)."
}

func (h *HelperTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"args": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Arguments passed verbatim to the helper executable",
			},
		},
		"required": []string{"args"},
	}
}

func (h *HelperTool) Execute(ctx context.Context, params Params) Result {
	args := params.Strings("args")
	out, err := h.Invoke(ctx, args...)
	if err != nil {
		return Failure(KindExecution, "%v", err)
	}
	if out == "" {
		out = "(no output)"
	}
	return Success(fmt.Sprintf("helper %s: %s", args[0], out), map[string]any{"output": out})
}

// Invoke runs the helper and returns its trimmed output. A nonzero exit is
// an error carrying whatever the helper printed.
func (h *HelperTool) Invoke(ctx context.Context, args ...string) (string, error) {
	if h.Path == "" {
		return "", fmt.Errorf("helper path is not configured (set ORBIT_HELPER_PATH)")
	}
	if _, err := os.Stat(h.Path); err != nil {
		return "", fmt.Errorf("helper binary not found at %s", h.Path)
	}
	if len(args) == 0 {
		return "", fmt.Errorf("helper requires at least one argument")
	}

	stdout, stderr, code, err := h.Runner.Run(ctx, h.Path, args...)
	output := combinedOutput(stdout, stderr)
	if err != nil {
		if output == "" {
			output = "(no output)"
		}
		return "", fmt.Errorf("helper %s failed (exit %d): %s", args[0], code, output)
	}
	return strings.TrimSpace(output), nil
}

// MediaTool drives the music player through the helper's AppleScript bridge.
type MediaTool struct {
	Helper *HelperTool
}

func NewMediaTool(helper *HelperTool) *MediaTool {
	return &MediaTool{Helper: helper}
}

func (m *MediaTool) Name() string {
	return "media"
}

func (m *MediaTool) Description() string {
	return "Control music playback: play, pause, next or previous track, show the current track, set the volume (level) or search and play (query)."
}

func (m *MediaTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"play", "pause", "next", "previous", "current", "volume", "search"},
				"description": "Playback action",
			},
			"level": map[string]any{
				"type":        "integer",
				"minimum":     0,
				"maximum":     100,
				"description": "Volume level for the volume action",
			},
			"query": map[string]any{
				"type":        "string",
				"description": "What to search for with the search action",
			},
		},
		"required": []string{"action"},
	}
}

var mediaScripts = map[string]string{
	"play":     `tell application "Spotify" to play`,
	"pause":    `tell application "Spotify" to pause`,
	"next":     `tell application "Spotify" to next track`,
	"previous": `tell application "Spotify" to previous track`,
}

const currentTrackScript = `tell application "Spotify"
	if it is not running then return "not running"
	if player state is stopped then return "no track"
	return (name of current track) & "||" & (artist of current track) & "||" & (album of current track) & "||" & (player state as string)
end tell`

func (m *MediaTool) Execute(ctx context.Context, params Params) Result {
	action := params.String("action")
	switch action {
	case "current":
		return m.current(ctx)
	case "volume":
		level, ok := asInt(params["level"])
		if !ok || level < 0 || level > 100 {
			return Failure(KindInvalidParams, "volume needs a level between 0 and 100")
		}
		script := fmt.Sprintf(`tell application "Spotify" to set sound volume to %d`, level)
		if _, err := m.Helper.Invoke(ctx, "run-applescript", script); err != nil {
			return Failure(KindExecution, "Media volume failed: %v", err)
		}
		return Success(fmt.Sprintf("Media: volume %d", level), map[string]any{"level": level})
	case "search":
		query := strings.TrimSpace(params.String("query"))
		if query == "" {
			return Failure(KindInvalidParams, "search needs a query")
		}
		script := fmt.Sprintf(`tell application "Spotify"
	activate
	open location %s
end tell`, appleScriptString("spotify:search:"+url.QueryEscape(query)))
		if _, err := m.Helper.Invoke(ctx, "run-applescript", script); err != nil {
			return Failure(KindExecution, "Media search failed: %v", err)
		}
		return Success(fmt.Sprintf("Media: searching Spotify for %q", query), map[string]any{"query": query})
	}

	script, ok := mediaScripts[action]
	if !ok {
		return Failure(KindInvalidParams, "unknown media action %q", action)
	}
	if _, err := m.Helper.Invoke(ctx, "run-applescript", script); err != nil {
		return Failure(KindExecution, "Media %s failed: %v", action, err)
	}
	return Success(fmt.Sprintf("Media: %s", action), nil)
}

func (m *MediaTool) current(ctx context.Context) Result {
	out, err := m.Helper.Invoke(ctx, "run-applescript", currentTrackScript)
	if err != nil {
		return Failure(KindExecution, "Media current failed: %v", err)
	}
	switch out {
	case "not running":
		return Failure(KindExecution, "Spotify is not running")
	case "no track":
		return Success("Nothing is playing", map[string]any{"playing": false})
	}
	fields := strings.Split(out, "||")
	if len(fields) < 4 {
		return Success("Now playing: "+out, map[string]any{"playing": true, "track": out})
	}
	return Success(fmt.Sprintf("Now playing: %s by %s", fields[0], fields[1]), map[string]any{
		"playing": fields[3] == "playing",
		"name":    fields[0],
		"artist":  fields[1],
		"album":   fields[2],
		"state":   fields[3],
	})
}
