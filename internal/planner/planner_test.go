package planner

import (
	"errors"
	"testing"

	"github.com/rahul/orbit/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlanner(t *testing.T) *Planner {
	t.Helper()
	registry, browser := tools.NewDefaultRegistry(tools.Options{
		Home:          t.TempDir(),
		HelperPath:    "/usr/local/bin/orbit-helper",
		Launcher:      []string{"open", "-a"},
		Headless:      true,
		ScreenshotDir: t.TempDir(),
		Shell:         true,
	})
	t.Cleanup(browser.Close)
	return New(registry)
}

func TestParse_CreateFiles(t *testing.T) {
	p := newTestPlanner(t)

	plan, err := p.Parse("create 3 files in documents")
	require.NoError(t, err)
	require.Len(t, plan.Calls, 1)
	assert.Equal(t, "create_files", plan.Calls[0].Tool)
	assert.Equal(t, tools.Params{"count": 3, "dir": "documents"}, plan.Calls[0].Params)
	require.NotNil(t, plan.Calls[0].Impl())
	assert.Equal(t, "create_files", plan.Calls[0].Impl().Name())
}

func TestParse_OpenApp(t *testing.T) {
	p := newTestPlanner(t)

	plan, err := p.Parse("open calculator")
	require.NoError(t, err)
	require.Len(t, plan.Calls, 1)
	assert.Equal(t, "open_app", plan.Calls[0].Tool)
	assert.Equal(t, tools.Params{"name": "calculator"}, plan.Calls[0].Params)
}

func TestParse_MultiClauseKeepsOrder(t *testing.T) {
	p := newTestPlanner(t)

	plan, err := p.Parse("create 2 files then open notion")
	require.NoError(t, err)
	require.Len(t, plan.Calls, 2)
	assert.Equal(t, "create_files", plan.Calls[0].Tool)
	assert.Equal(t, 2, plan.Calls[0].Params["count"])
	assert.Equal(t, "open_app", plan.Calls[1].Tool)
	assert.Equal(t, "notion", plan.Calls[1].Params["name"])
}

func TestParse_Unparseable(t *testing.T) {
	p := newTestPlanner(t)

	_, err := p.Parse("frobnicate the whatsit")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnparseableCommand))

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "frobnicate the whatsit", perr.Clause)
}

func TestParse_AllOrNothing(t *testing.T) {
	p := newTestPlanner(t)

	plan, err := p.Parse("open calculator and frobnicate the whatsit")
	require.ErrorIs(t, err, ErrUnparseableCommand)
	assert.Empty(t, plan.Calls)
}

func TestParse_VolumeOutOfRangeIsUnparseable(t *testing.T) {
	p := newTestPlanner(t)

	_, err := p.Parse("set volume to 150")
	assert.ErrorIs(t, err, ErrUnparseableCommand)
	assert.ErrorIs(t, err, tools.ErrInvalidParams)
}

func TestParse_TrailingSeparator(t *testing.T) {
	p := newTestPlanner(t)

	plan, err := p.Parse("create 2 files; open notion;")
	require.NoError(t, err)
	require.Len(t, plan.Calls, 2)
	assert.Equal(t, "open_app", plan.Calls[1].Tool)
}

func TestParse_EmptyAndPunctuation(t *testing.T) {
	p := newTestPlanner(t)

	for _, cmd := range []string{"", "   ", "...", "!?;"} {
		_, err := p.Parse(cmd)
		assert.ErrorIs(t, err, ErrUnparseableCommand, "command %q", cmd)
	}
}

func TestParse_Deterministic(t *testing.T) {
	p := newTestPlanner(t)

	cmd := "make a folder called projects; write \"hello and bye\" to projects/a.txt and then reveal projects/a.txt"
	first, err := p.Parse(cmd)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := p.Parse(cmd)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	require.Len(t, first.Calls, 3)
	assert.Equal(t, "make_directory", first.Calls[0].Tool)
	assert.Equal(t, tools.Params{"content": "hello and bye", "path": "projects/a.txt"}, first.Calls[1].Params)
	assert.Equal(t, "reveal", first.Calls[2].Tool)
}

func TestParse_MissingToolIsToolNotFound(t *testing.T) {
	p := WithRules(tools.NewRegistry(), DefaultRules)

	_, err := p.Parse("open calculator")
	require.Error(t, err)
	assert.ErrorIs(t, err, tools.ErrToolNotFound)
	assert.NotErrorIs(t, err, ErrUnparseableCommand)
}

func TestParse_DisabledShellIsToolNotFound(t *testing.T) {
	registry, browser := tools.NewDefaultRegistry(tools.Options{Home: t.TempDir()})
	t.Cleanup(browser.Close)

	_, err := New(registry).Parse("run shell uptime")
	assert.ErrorIs(t, err, tools.ErrToolNotFound)
}

func TestParse_InvalidParamsAreUnparseable(t *testing.T) {
	p := newTestPlanner(t)

	_, err := p.Parse("create 5000 files in documents")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnparseableCommand)
	assert.ErrorIs(t, err, tools.ErrInvalidParams)
}

func TestParse_RuleTable(t *testing.T) {
	p := newTestPlanner(t)

	cases := []struct {
		command string
		tool    string
		params  tools.Params
	}{
		{"create five markdown files in desktop named todo", "create_files",
			tools.Params{"count": 5, "dir": "desktop", "ext": "md", "prefix": "todo"}},
		{"make a file", "create_files", tools.Params{"count": 1, "dir": "documents"}},
		{"go to example.com", "browser_navigate", tools.Params{"url": "https://example.com"}},
		{"open https://golang.org/doc", "browser_navigate", tools.Params{"url": "https://golang.org/doc"}},
		{"open www.github.com", "browser_navigate", tools.Params{"url": "https://www.github.com"}},
		{"open file.txt", "open_app", tools.Params{"name": "file.txt"}},
		{"click on #submit", "browser_click", tools.Params{"selector": "#submit"}},
		{`type "hello" into input[name=q]`, "browser_type", tools.Params{"text": "hello", "selector": "input[name=q]"}},
		{"get text from h1", "browser_get_text", tools.Params{"selector": "h1"}},
		{"take a screenshot", "browser_screenshot", tools.Params{}},
		{"summarize the page", "browser_summarize", tools.Params{}},
		{"fetch page go.dev/blog", "fetch_page", tools.Params{"url": "https://go.dev/blog"}},
		{"search the web for golang generics", "web_search", tools.Params{"query": "golang generics"}},
		{"read file notes.txt", "read_file", tools.Params{"path": "notes.txt"}},
		{"list files in downloads", "list_directory", tools.Params{"path": "downloads"}},
		{"list files", "list_directory", tools.Params{"path": "."}},
		{"move a.txt to documents", "move_file", tools.Params{"source": "a.txt", "destination": "documents"}},
		{"delete file old.md", "delete_file", tools.Params{"path": "old.md"}},
		{"show report.pdf in finder", "reveal", tools.Params{"path": "report.pdf"}},
		{"wait 5 seconds", "wait", tools.Params{"seconds": 5}},
		{"wait for out.csv up to 10s", "wait_for_path", tools.Params{"path": "out.csv", "timeout_seconds": 10}},
		{"pause the music", "media", tools.Params{"action": "pause"}},
		{"skip song", "media", tools.Params{"action": "next"}},
		{"previous track", "media", tools.Params{"action": "previous"}},
		{"what's playing", "media", tools.Params{"action": "current"}},
		{"set volume to 30%", "media", tools.Params{"action": "volume", "level": 30}},
		{"search spotify for lofi beats", "media", tools.Params{"action": "search", "query": "lofi beats"}},
		{"play Blue in Green on spotify", "media", tools.Params{"action": "search", "query": "Blue in Green"}},
		{"create event standup tomorrow at 10am", "create_calendar_event",
			tools.Params{"title": "standup", "start": "tomorrow at 10am"}},
		{"schedule event dentist at 3pm", "create_calendar_event", tools.Params{"title": "dentist", "start": "3pm"}},
		{`create event "file review"`, "create_calendar_event", tools.Params{"title": "file review"}},
		{"show my calendar", "list_calendar_events", tools.Params{}},
		{"list events for the next 3 days", "list_calendar_events", tools.Params{"days": 3}},
		{"delete event 1F2E-AB", "delete_calendar_event", tools.Params{"event_id": "1F2E-AB"}},
		{"focus vscode", "helper", tools.Params{"args": []string{"focus-app", "Visual Studio Code"}}},
		{`run shell "ls -la ~"`, "shell", tools.Params{"command": "ls -la ~"}},
		{`run helper list-windows "Google Chrome"`, "helper", tools.Params{"args": []string{"list-windows", "Google Chrome"}}},
		{"please launch Spotify.", "open_app", tools.Params{"name": "Spotify"}},
	}

	for _, tc := range cases {
		t.Run(tc.command, func(t *testing.T) {
			plan, err := p.Parse(tc.command)
			require.NoError(t, err)
			require.Len(t, plan.Calls, 1)
			assert.Equal(t, tc.tool, plan.Calls[0].Tool)
			assert.Equal(t, tc.params, plan.Calls[0].Params)
		})
	}
}

func TestSplitClauses(t *testing.T) {
	assert.Equal(t, []string{"open a", "open b", "open c", "open d"},
		SplitClauses("open a, and then open b then open c; open d."))
	assert.Equal(t, []string{`write "x and y" to f.txt`}, SplitClauses(`write "x and y" to f.txt`))
	assert.Nil(t, SplitClauses(" ; "))
	assert.Equal(t, []string{"create 2 files"}, SplitClauses("create 2 files;"))
	assert.Equal(t, []string{"create 2 files", "open notion"}, SplitClauses("create 2 files; open notion; "))
}

func TestSplitArgs(t *testing.T) {
	assert.Equal(t, []string{"a", "b c", "d"}, SplitArgs(`a "b c" 'd'`))
	assert.Empty(t, SplitArgs("   "))
}
