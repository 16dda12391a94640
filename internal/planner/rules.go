package planner

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rahul/orbit/internal/tools"
)

// Rule recognizes one clause shape and extracts a tool call from it.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Build   func(m []string) (tool string, params tools.Params, ok bool)
}

func rule(name, pattern string, build func(m []string) (string, tools.Params, bool)) Rule {
	return Rule{Name: name, Pattern: regexp.MustCompile(`(?i)^` + pattern + `$`), Build: build}
}

// Match applies the rule to a clause.
func (r Rule) Match(clause string) (string, tools.Params, bool) {
	m := r.Pattern.FindStringSubmatch(clause)
	if m == nil {
		return "", nil, false
	}
	return r.Build(m)
}

const urlLike = `(https?://\S+|[\w-]+(?:\.[\w-]+)+(?:[/?#]\S*)?)`

// dayPhrase names a day the calendar rules can schedule on.
const dayPhrase = `(?:today|tomorrow|(?:next\s+|on\s+)?(?:mon|tues|wednes|thurs|fri|satur|sun)day)`

// explicitURL only accepts text that cannot be an app or file name.
const explicitURL = `(https?://\S+|www\.[\w-]+(?:\.[\w-]+)+(?:[/?#]\S*)?)`

var countWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

// extWords maps file type words to extensions.
var extWords = map[string]string{
	"markdown": "md", "md": "md", "text": "txt", "txt": "txt", "json": "json",
	"python": "py", "py": "py", "javascript": "js", "js": "js", "typescript": "ts",
	"ts": "ts", "csv": "csv", "html": "html", "yaml": "yaml", "log": "log",
}

var (
	dirOption    = regexp.MustCompile(`(?i)\b(?:in|into|inside|under)\s+(?:the\s+|my\s+)?("[^"]+"|'[^']+'|\S+)`)
	prefixOption = regexp.MustCompile(`(?i)\b(?:prefix(?:ed)?|named|called)\s+(?:with\s+)?["']?([\w.-]+?)["']?(?:\s|$)`)
	extOption    = regexp.MustCompile(`(?i)\b(?:ext(?:ension)?|as)\s+\.?(\w+)`)
)

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

func buildCreateFiles(m []string) (string, tools.Params, bool) {
	count := 1
	if m[1] != "" {
		if n, err := strconv.Atoi(m[1]); err == nil {
			count = n
		} else {
			count = countWords[strings.ToLower(m[1])]
		}
	}
	params := tools.Params{"count": count, "dir": "documents"}

	if kind := strings.ToLower(m[2]); kind != "" {
		if ext, ok := extWords[kind]; ok {
			params["ext"] = ext
		} else {
			params["prefix"] = kind
		}
	}

	rest := m[3]
	if d := dirOption.FindStringSubmatch(rest); d != nil {
		params["dir"] = unquote(d[1])
	}
	if p := prefixOption.FindStringSubmatch(rest); p != nil {
		params["prefix"] = p[1]
	}
	if e := extOption.FindStringSubmatch(rest); e != nil {
		ext := strings.ToLower(e[1])
		if mapped, ok := extWords[ext]; ok {
			ext = mapped
		}
		params["ext"] = ext
	}
	return "create_files", params, true
}

func single(tool, key string, transform func(string) string) func(m []string) (string, tools.Params, bool) {
	return func(m []string) (string, tools.Params, bool) {
		v := unquote(m[1])
		if transform != nil {
			v = transform(v)
		}
		if v == "" {
			return "", nil, false
		}
		return tool, tools.Params{key: v}, true
	}
}

func fixed(tool string, params tools.Params) func(m []string) (string, tools.Params, bool) {
	return func(m []string) (string, tools.Params, bool) {
		out := make(tools.Params, len(params))
		for k, v := range params {
			out[k] = v
		}
		return tool, out, true
	}
}

// notApps are nouns that "open X" must not treat as application names.
var notApps = map[string]bool{
	"file": true, "files": true, "folder": true, "directory": true, "the file": true,
}

// SplitArgs splits a helper argument string on whitespace, honoring double
// and single quotes.
func SplitArgs(s string) []string {
	var args []string
	var cur strings.Builder
	var quote rune
	inArg := false
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == ' ' || r == '\t':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args
}

// DefaultRules is the rule table in match order. The first rule whose
// pattern matches a clause wins, so broader rules sit further down.
var DefaultRules = []Rule{
	rule("create_event",
		`(?:create|schedule|add)\s+(?:an?\s+)?(?:calendar\s+)?event\s+(.+?)(?:\s+(`+dayPhrase+`(?:\s+at\s+.+)?)|\s+at\s+(.+))?`,
		func(m []string) (string, tools.Params, bool) {
			title := unquote(m[1])
			params := tools.Params{"title": title}
			if start := strings.TrimSpace(m[2] + m[3]); start != "" {
				params["start"] = start
			}
			return "create_calendar_event", params, title != ""
		}),
	rule("list_events",
		`(?:(?:list|show)\s+(?:my\s+)?(?:upcoming\s+)?(?:calendar\s+)?events|show\s+(?:my\s+)?calendar|what(?:'s|\s+is)\s+on\s+my\s+calendar)(?:\s+for\s+(?:the\s+)?next\s+(\d+)\s+days?)?`,
		func(m []string) (string, tools.Params, bool) {
			params := tools.Params{}
			if m[1] != "" {
				n, err := strconv.Atoi(m[1])
				if err != nil {
					return "", nil, false
				}
				params["days"] = n
			}
			return "list_calendar_events", params, true
		}),
	rule("delete_event",
		`(?:delete|remove|cancel)\s+(?:the\s+)?(?:calendar\s+)?event\s+(\S+)`,
		single("delete_calendar_event", "event_id", nil)),
	rule("create_files",
		`(?:create|make)\s+(?:(\d+|an?|one|two|three|four|five|six|seven|eight|nine|ten)\s+)?(?:(?:new|empty|blank)\s+)*(?:(\w+)\s+)?files?\b(.*)`,
		buildCreateFiles),
	rule("make_directory",
		`(?:create|make)\s+(?:an?\s+)?(?:new\s+)?(?:directory|folder|dir)\s+(?:called\s+|named\s+)?(.+)`,
		single("make_directory", "path", nil)),
	rule("navigate",
		`(?:navigate\s+to|go\s+to|browse\s+to|visit)\s+`+urlLike,
		single("browser_navigate", "url", tools.NormalizeURL)),
	rule("open_url",
		`open\s+`+explicitURL,
		single("browser_navigate", "url", tools.NormalizeURL)),
	rule("click",
		`click\s+(?:on\s+)?(.+)`,
		single("browser_click", "selector", nil)),
	rule("type",
		`type\s+"([^"]*)"\s+(?:into|in)\s+(.+)`,
		func(m []string) (string, tools.Params, bool) {
			return "browser_type", tools.Params{"text": m[1], "selector": unquote(m[2])}, true
		}),
	rule("get_text",
		`get\s+(?:the\s+)?text\s+(?:from|of)\s+(.+)`,
		single("browser_get_text", "selector", nil)),
	rule("screenshot",
		`(?:take\s+(?:a\s+)?)?screenshot`,
		fixed("browser_screenshot", tools.Params{})),
	rule("summarize",
		`summari[sz]e(?:\s+(?:the\s+|this\s+)?page)?`,
		fixed("browser_summarize", tools.Params{})),
	rule("fetch_page",
		`(?:read|fetch)\s+(?:the\s+)?(?:article|page)\s+(?:at\s+|from\s+)?`+urlLike,
		single("fetch_page", "url", tools.NormalizeURL)),
	rule("web_search",
		`(?:search\s+(?:the\s+)?(?:web|internet|online)\s+for|look\s+up|google)\s+(.+)`,
		single("web_search", "query", nil)),
	rule("read_file",
		`(?:read|show|cat)\s+(?:the\s+)?file\s+(.+)`,
		single("read_file", "path", nil)),
	rule("write_file",
		`write\s+"([^"]*)"\s+(?:to|into|in)\s+(.+)`,
		func(m []string) (string, tools.Params, bool) {
			return "write_file", tools.Params{"content": m[1], "path": unquote(m[2])}, true
		}),
	rule("list_directory",
		`list\s+(?:the\s+)?(?:files|directory|folder|contents)(?:\s+(?:in|of)\s+(.+))?`,
		func(m []string) (string, tools.Params, bool) {
			path := unquote(m[1])
			if path == "" {
				path = "."
			}
			return "list_directory", tools.Params{"path": path}, true
		}),
	rule("move_file",
		`(?:move|rename)\s+(.+?)\s+to\s+(.+)`,
		func(m []string) (string, tools.Params, bool) {
			return "move_file", tools.Params{"source": unquote(m[1]), "destination": unquote(m[2])}, true
		}),
	rule("delete_file",
		`(?:delete|remove)\s+(?:the\s+)?(?:file\s+|folder\s+|directory\s+)?(.+)`,
		single("delete_file", "path", nil)),
	rule("reveal",
		`(?:reveal\s+(.+)|show\s+(.+?)\s+in\s+(?:finder|files))`,
		func(m []string) (string, tools.Params, bool) {
			path := unquote(m[1] + m[2])
			return "reveal", tools.Params{"path": path}, path != ""
		}),
	rule("wait",
		`(?:wait|sleep)\s+(?:for\s+)?(\d+)\s*(?:s|secs?|seconds?)`,
		func(m []string) (string, tools.Params, bool) {
			n, err := strconv.Atoi(m[1])
			return "wait", tools.Params{"seconds": n}, err == nil
		}),
	rule("wait_for_path",
		`wait\s+(?:for|until)\s+(?:the\s+)?(?:file\s+)?(\S+)(?:\s+(?:exists|appears))?(?:\s+(?:up\s+to|for|within)\s+(\d+)\s*(?:s|secs?|seconds?))?`,
		func(m []string) (string, tools.Params, bool) {
			params := tools.Params{"path": unquote(m[1])}
			if m[2] != "" {
				n, err := strconv.Atoi(m[2])
				if err != nil {
					return "", nil, false
				}
				params["timeout_seconds"] = n
			}
			return "wait_for_path", params, true
		}),
	rule("media_play",
		`(?:play|resume)(?:\s+(?:the\s+)?(?:music|spotify|song))?`,
		fixed("media", tools.Params{"action": "play"})),
	rule("media_pause",
		`(?:pause|stop)(?:\s+(?:the\s+)?(?:music|spotify|song))?`,
		fixed("media", tools.Params{"action": "pause"})),
	rule("media_next",
		`(?:skip(?:\s+(?:this\s+)?(?:song|track))?|next\s+(?:song|track))`,
		fixed("media", tools.Params{"action": "next"})),
	rule("media_previous",
		`(?:previous|last)\s+(?:song|track)`,
		fixed("media", tools.Params{"action": "previous"})),
	rule("media_current",
		`(?:what(?:'s|\s+is)\s+playing|(?:show\s+)?(?:the\s+)?current\s+(?:song|track)|what\s+song\s+is\s+(?:this|playing))`,
		fixed("media", tools.Params{"action": "current"})),
	rule("media_volume",
		`(?:set\s+)?(?:the\s+)?(?:spotify\s+|music\s+)?volume\s+(?:to\s+)?(\d+)\s*%?`,
		func(m []string) (string, tools.Params, bool) {
			n, err := strconv.Atoi(m[1])
			return "media", tools.Params{"action": "volume", "level": n}, err == nil
		}),
	rule("media_search",
		`(?:search\s+(?:spotify|music)\s+(?:for\s+)?(.+)|play\s+(.+?)\s+on\s+spotify)`,
		func(m []string) (string, tools.Params, bool) {
			query := unquote(m[1] + m[2])
			return "media", tools.Params{"action": "search", "query": query}, query != ""
		}),
	rule("focus_app",
		`(?:focus|switch\s+to)\s+(?:the\s+)?(.+?)(?:\s+app)?`,
		func(m []string) (string, tools.Params, bool) {
			name := unquote(m[1])
			return "helper", tools.Params{"args": []string{"focus-app", tools.DisplayName(name)}}, name != ""
		}),
	rule("shell",
		`(?:run\s+(?:shell|command)|shell)\s+(.+)`,
		single("shell", "command", nil)),
	rule("helper",
		`run\s+helper\s+(.+)`,
		func(m []string) (string, tools.Params, bool) {
			args := SplitArgs(m[1])
			return "helper", tools.Params{"args": args}, len(args) > 0
		}),
	rule("open_app",
		`(?:open|launch|start)\s+(?:the\s+)?(?:app(?:lication)?\s+)?(.+?)(?:\s+app(?:lication)?)?`,
		func(m []string) (string, tools.Params, bool) {
			name := unquote(m[1])
			if name == "" || notApps[strings.ToLower(name)] {
				return "", nil, false
			}
			return "open_app", tools.Params{"name": name}, true
		}),
}
