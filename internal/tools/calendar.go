package tools

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DefaultCalendar is the calendar new events are created in.
const DefaultCalendar = "Calendar"

// defaultEventStart is used when a command names no time.
const defaultEventStart = "today at 9:00"

// Calendar drives the Calendar app through the helper's AppleScript bridge.
type Calendar struct {
	Helper *HelperTool
	Name   string
	Now    func() time.Time
}

func NewCalendar(helper *HelperTool) *Calendar {
	return &Calendar{Helper: helper, Name: DefaultCalendar, Now: time.Now}
}

// Tools returns create_calendar_event, list_calendar_events and
// delete_calendar_event bound to c.
func (c *Calendar) Tools() []Tool {
	return []Tool{
		&funcTool{
			name:        "create_calendar_event",
			description: "Create a calendar event. start accepts \"today/tomorrow/<weekday> at 3pm\" or an explicit date.",
			schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":       map[string]any{"type": "string", "description": "Event title"},
					"start":       map[string]any{"type": "string", "description": "Start date and time"},
					"end":         map[string]any{"type": "string", "description": "End date and time, default one hour after start"},
					"description": map[string]any{"type": "string"},
					"location":    map[string]any{"type": "string"},
				},
				"required": []string{"title"},
			},
			run: c.create,
		},
		&funcTool{
			name:        "list_calendar_events",
			description: "List upcoming calendar events.",
			schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"days":     map[string]any{"type": "integer", "minimum": 1, "maximum": 365, "description": "Days to look ahead, default 7"},
					"calendar": map[string]any{"type": "string", "description": "Only this calendar"},
				},
			},
			run: c.list,
		},
		&funcTool{
			name:        "delete_calendar_event",
			description: "Delete a calendar event by its id.",
			schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"event_id": map[string]any{"type": "string", "description": "Event id as returned by create or list"},
				},
				"required": []string{"event_id"},
			},
			run: c.delete,
		},
	}
}

func (c *Calendar) create(ctx context.Context, params Params) Result {
	title := strings.TrimSpace(params.String("title"))
	if title == "" {
		return Failure(KindInvalidParams, "Error: event title is empty")
	}
	now := c.Now()
	start, err := ParseWhen(params.StringOr("start", defaultEventStart), now)
	if err != nil {
		return Failure(KindInvalidParams, "Invalid start date: %v", err)
	}
	end := start.Add(time.Hour)
	if raw := params.String("end"); raw != "" {
		if end, err = ParseWhen(raw, now); err != nil {
			return Failure(KindInvalidParams, "Invalid end date: %v", err)
		}
		if !end.After(start) {
			return Failure(KindInvalidParams, "Event must end after it starts")
		}
	}

	props := []string{
		"summary:" + appleScriptString(title),
		"start date:startDate",
		"end date:endDate",
	}
	if d := params.String("description"); d != "" {
		props = append(props, "description:"+appleScriptString(d))
	}
	if l := params.String("location"); l != "" {
		props = append(props, "location:"+appleScriptString(l))
	}

	var script strings.Builder
	script.WriteString(appleScriptDate("startDate", start))
	script.WriteString(appleScriptDate("endDate", end))
	fmt.Fprintf(&script, `tell application "Calendar"
	tell calendar %s
		set newEvent to make new event with properties {%s}
		return uid of newEvent
	end tell
end tell`, appleScriptString(c.Name), strings.Join(props, ", "))

	id, err := c.Helper.Invoke(ctx, "run-applescript", script.String())
	if err != nil {
		return Failure(KindExecution, "Create event failed: %v", err)
	}
	return Success(fmt.Sprintf("Created event %q on %s", title, start.Format("Mon Jan 2 15:04")), map[string]any{
		"event_id": id,
		"title":    title,
		"start":    start.Format(time.RFC3339),
		"end":      end.Format(time.RFC3339),
	})
}

// eventFieldSep separates the fields of one event line in list output.
const eventFieldSep = "||"

func (c *Calendar) list(ctx context.Context, params Params) Result {
	days := params.IntOr("days", 7)
	source := "calendars"
	if name := params.String("calendar"); name != "" {
		source = "{calendar " + appleScriptString(name) + "}"
	}

	script := fmt.Sprintf(`set startDate to current date
set endDate to startDate + (%d * days)
set out to ""
tell application "Calendar"
	repeat with cal in %s
		repeat with evt in (every event of cal whose start date ≥ startDate and start date ≤ endDate)
			set out to out & (uid of evt) & "%s" & (summary of evt) & "%s" & ((start date of evt) as string) & "%s" & (name of cal) & linefeed
		end repeat
	end repeat
end tell
return out`, days, source, eventFieldSep, eventFieldSep, eventFieldSep)

	out, err := c.Helper.Invoke(ctx, "run-applescript", script)
	if err != nil {
		return Failure(KindExecution, "List events failed: %v", err)
	}
	events := parseEventLines(out)
	return Success(fmt.Sprintf("Found %d event(s) in the next %d day(s)", len(events), days),
		map[string]any{"events": events, "count": len(events), "days": days})
}

func parseEventLines(out string) []map[string]any {
	events := []map[string]any{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(strings.TrimSpace(line), eventFieldSep)
		if len(fields) < 4 {
			continue
		}
		events = append(events, map[string]any{
			"event_id": fields[0],
			"title":    fields[1],
			"start":    fields[2],
			"calendar": fields[3],
		})
	}
	return events
}

func (c *Calendar) delete(ctx context.Context, params Params) Result {
	id := strings.TrimSpace(params.String("event_id"))
	if id == "" {
		return Failure(KindInvalidParams, "Error: empty event id")
	}

	script := fmt.Sprintf(`tell application "Calendar"
	repeat with cal in calendars
		set found to (every event of cal whose uid is %s)
		if (count of found) > 0 then
			delete item 1 of found
			return "deleted"
		end if
	end repeat
end tell
return "not found"`, appleScriptString(id))

	out, err := c.Helper.Invoke(ctx, "run-applescript", script)
	if err != nil {
		return Failure(KindExecution, "Delete event failed: %v", err)
	}
	if out != "deleted" {
		return Failure(KindExecution, "Event %s not found", id)
	}
	return Success(fmt.Sprintf("Deleted event %s", id), map[string]any{"event_id": id})
}

// appleScriptString quotes s as an AppleScript string literal.
func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// appleScriptDate assigns t to variable name field by field, so the script
// does not depend on the user's date format.
func appleScriptDate(name string, t time.Time) string {
	return fmt.Sprintf(`set %[1]s to current date
set day of %[1]s to 1
set year of %[1]s to %[2]d
set month of %[1]s to %[3]d
set day of %[1]s to %[4]d
set time of %[1]s to %[5]d
`, name, t.Year(), int(t.Month()), t.Day(), t.Hour()*3600+t.Minute()*60+t.Second())
}

var (
	relativeDay = regexp.MustCompile(`(?i)^(today|tomorrow)(?:\s+(?:at|@)\s+(.+))?$`)
	weekdayDay  = regexp.MustCompile(`(?i)^(?:next\s+|on\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)(?:\s+(?:at|@)\s+(.+))?$`)
	clockTime   = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

// ParseWhen resolves a date phrase relative to now. It understands
// "today", "tomorrow" and weekdays with an optional "at <time>", a bare
// time of day, and any explicit date dateparse recognizes. A day with no
// time means 9:00; a bare time already past today means tomorrow.
func ParseWhen(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if m := relativeDay.FindStringSubmatch(s); m != nil {
		day := midnight
		if strings.EqualFold(m[1], "tomorrow") {
			day = day.AddDate(0, 0, 1)
		}
		return atClock(day, m[2], s)
	}
	if m := weekdayDay.FindStringSubmatch(s); m != nil {
		ahead := (int(weekdays[strings.ToLower(m[1])]) - int(now.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return atClock(midnight.AddDate(0, 0, ahead), m[2], s)
	}
	if h, m, ok := parseClock(s); ok {
		t := midnight.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
		if t.Before(now) {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	}

	t, err := dateparse.ParseIn(s, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}
	return t, nil
}

func atClock(day time.Time, clock, original string) (time.Time, error) {
	if clock == "" {
		return day.Add(9 * time.Hour), nil
	}
	h, m, ok := parseClock(clock)
	if !ok {
		return time.Time{}, fmt.Errorf("unrecognized time in %q", original)
	}
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute), nil
}

// parseClock reads "3pm", "3:15 pm" or "14:05".
func parseClock(s string) (hour, minute int, ok bool) {
	m := clockTime.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	switch strings.ToLower(m[3]) {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	case "":
		// A bare number without a colon is not a time.
		if m[2] == "" {
			return 0, 0, false
		}
	}
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}
