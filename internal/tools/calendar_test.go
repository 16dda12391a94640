package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wednesday is 2025-01-15 10:00 UTC.
var wednesday = time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

func newTestHelper(t *testing.T, runner *fakeRunner) *HelperTool {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "helper")
	require.NoError(t, os.WriteFile(bin, nil, 0755))
	return NewHelperTool(bin, runner)
}

func newTestCalendar(t *testing.T, runner *fakeRunner) map[string]Tool {
	t.Helper()
	c := NewCalendar(newTestHelper(t, runner))
	c.Now = func() time.Time { return wednesday }
	out := map[string]Tool{}
	for _, tool := range c.Tools() {
		out[tool.Name()] = tool
	}
	return out
}

func TestParseWhen(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"today", time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)},
		{"today at 9:00", time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)},
		{"tomorrow at 3pm", time.Date(2025, 1, 16, 15, 0, 0, 0, time.UTC)},
		{"friday at 2:30 pm", time.Date(2025, 1, 17, 14, 30, 0, 0, time.UTC)},
		{"on friday", time.Date(2025, 1, 17, 9, 0, 0, 0, time.UTC)},
		{"next wednesday", time.Date(2025, 1, 22, 9, 0, 0, 0, time.UTC)},
		{"3pm", time.Date(2025, 1, 15, 15, 0, 0, 0, time.UTC)},
		{"9am", time.Date(2025, 1, 16, 9, 0, 0, 0, time.UTC)},
		{"12am", time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)},
		{"2025-02-01 14:00", time.Date(2025, 2, 1, 14, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseWhen(tc.in, wednesday)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "got %s", got)
		})
	}

	for _, bad := range []string{"", "tomorrow at noonish", "friday at 25:00"} {
		_, err := ParseWhen(bad, wednesday)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestCalendar_CreateEvent(t *testing.T) {
	runner := &fakeRunner{stdout: "EVT-1\n"}
	cal := newTestCalendar(t, runner)

	res := cal["create_calendar_event"].Execute(context.Background(),
		Params{"title": `Say "hi"`, "start": "tomorrow at 9:30am", "location": "Room 4"})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "EVT-1", res.Data["event_id"])
	assert.Equal(t, "2025-01-16T09:30:00Z", res.Data["start"])
	assert.Equal(t, "2025-01-16T10:30:00Z", res.Data["end"])

	require.Len(t, runner.calls, 1)
	script := runner.calls[0][2]
	assert.Equal(t, "run-applescript", runner.calls[0][1])
	assert.Contains(t, script, `summary:"Say \"hi\""`)
	assert.Contains(t, script, `location:"Room 4"`)
	assert.Contains(t, script, "set day of startDate to 16")
	assert.Contains(t, script, "set time of startDate to 34200")
	assert.Contains(t, script, `tell calendar "Calendar"`)
}

func TestCalendar_CreateEventRejectsBadDates(t *testing.T) {
	runner := &fakeRunner{}
	cal := newTestCalendar(t, runner)

	res := cal["create_calendar_event"].Execute(context.Background(), Params{"title": "x", "start": "tomorrow at noonish"})
	assert.False(t, res.OK)
	assert.Equal(t, KindInvalidParams, res.FailureKind())

	res = cal["create_calendar_event"].Execute(context.Background(),
		Params{"title": "x", "start": "tomorrow at 3pm", "end": "tomorrow at 2pm"})
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "end after it starts")
	assert.Empty(t, runner.calls)
}

func TestCalendar_ListEvents(t *testing.T) {
	runner := &fakeRunner{stdout: "A1||Standup||Thursday, 16 January 2025 at 09:00:00||Work\nB2||Lunch||Friday, 17 January 2025 at 12:00:00||Home\n"}
	cal := newTestCalendar(t, runner)

	res := cal["list_calendar_events"].Execute(context.Background(), Params{"days": 3})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "Found 2 event(s) in the next 3 day(s)", res.Message)

	events := res.Data["events"].([]map[string]any)
	require.Len(t, events, 2)
	assert.Equal(t, "A1", events[0]["event_id"])
	assert.Equal(t, "Lunch", events[1]["title"])
	assert.Equal(t, "Home", events[1]["calendar"])
	assert.Contains(t, runner.calls[0][2], "(3 * days)")
}

func TestCalendar_DeleteEvent(t *testing.T) {
	runner := &fakeRunner{stdout: "deleted"}
	cal := newTestCalendar(t, runner)

	res := cal["delete_calendar_event"].Execute(context.Background(), Params{"event_id": "A1"})
	require.True(t, res.OK, res.Message)
	assert.Contains(t, runner.calls[0][2], `whose uid is "A1"`)

	runner.stdout = "not found"
	res = cal["delete_calendar_event"].Execute(context.Background(), Params{"event_id": "ZZ"})
	assert.False(t, res.OK)
	assert.Equal(t, "Event ZZ not found", res.Message)
}

func TestAppleScriptString(t *testing.T) {
	assert.Equal(t, `"a\"b\\c"`, appleScriptString(`a"b\c`))
}

func TestMedia_CurrentTrack(t *testing.T) {
	runner := &fakeRunner{stdout: "So What||Miles Davis||Kind of Blue||playing"}
	media := NewMediaTool(newTestHelper(t, runner))

	res := media.Execute(context.Background(), Params{"action": "current"})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "Now playing: So What by Miles Davis", res.Message)
	assert.Equal(t, "Kind of Blue", res.Data["album"])
	assert.Equal(t, true, res.Data["playing"])

	runner.stdout = "not running"
	res = media.Execute(context.Background(), Params{"action": "current"})
	assert.False(t, res.OK)
	assert.Equal(t, "Spotify is not running", res.Message)
}

func TestMedia_VolumeAndSearch(t *testing.T) {
	runner := &fakeRunner{}
	media := NewMediaTool(newTestHelper(t, runner))

	res := media.Execute(context.Background(), Params{"action": "volume", "level": 40})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, `tell application "Spotify" to set sound volume to 40`, runner.calls[0][2])

	res = media.Execute(context.Background(), Params{"action": "search", "query": "lofi beats"})
	require.True(t, res.OK, res.Message)
	assert.Contains(t, runner.calls[1][2], `open location "spotify:search:lofi+beats"`)

	res = media.Execute(context.Background(), Params{"action": "volume"})
	assert.Equal(t, KindInvalidParams, res.FailureKind())
	res = media.Execute(context.Background(), Params{"action": "search", "query": " "})
	assert.Equal(t, KindInvalidParams, res.FailureKind())
	assert.Len(t, runner.calls, 2)
}
