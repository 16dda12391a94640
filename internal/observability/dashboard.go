package observability

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	ansiReset   = "\033[0m"
	ansiCyan    = "\033[96m"
	ansiMagenta = "\033[95m"
	ansiPurple  = "\033[35m"
)

// Screen layout: logo on rows 1-9, status on row 10, logs scroll from row 12.
const (
	statusRow = 10
	logRow    = 12
)

const logo = `
   ____  ____  ____  ________
  / __ \/ __ \/ __ )/  _/_  __/
 / / / / /_/ / __  |/ /  / /
/ /_/ / _, _/ /_/ // /  / /
\____/_/ |_/_____/___/ /_/

     >> LOCAL AUTOMATION AGENT <<`

var spinner = []string{"◜", "◝", "◞", "◟"}

// Dashboard pins a live status line above a scrolling log region. All
// writes to the terminal go through it so a log line can never land in the
// middle of a status redraw.
type Dashboard struct {
	mu      sync.Mutex
	out     *os.File
	started time.Time
	frame   int
}

func NewDashboard(out *os.File) *Dashboard {
	return &Dashboard{out: out, started: time.Now()}
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func (d *Dashboard) width() int {
	w, _, err := term.GetSize(int(d.out.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// Start clears the screen, draws the logo and confines scrolling to the
// log region.
func (d *Dashboard) Start(addr string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("\033[2J\033[H")
	width := d.width()
	for _, l := range append(strings.Split(logo, "\n"), "listening on "+addr) {
		pad := max((width-len([]rune(l)))/2, 0)
		fmt.Fprintf(&sb, "%s%s%s%s\n", strings.Repeat(" ", pad), ansiCyan, l, ansiReset)
	}
	fmt.Fprintf(&sb, "\033[%d;r\033[%d;1H", logRow, logRow)
	io.WriteString(d.out, sb.String())
}

// Stop restores the full-screen scroll region.
func (d *Dashboard) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	io.WriteString(d.out, "\033[r\033[2J\033[H")
}

// Write sends log output into the scroll region.
func (d *Dashboard) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.out.Write(p)
}

// Refresh redraws the status line from the current global status.
func (d *Dashboard) Refresh() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	st := GetStatus()
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()
	line := StatusLine(st, now, now.Sub(d.started), float64(m.Alloc)/(1<<20), d.frame)
	d.frame++
	fmt.Fprintf(d.out, "\033[s\033[%d;1H\033[K%s\033[u", statusRow, line)
}

// Health grades how recently the heartbeat ticked.
func Health(sinceHeartbeat time.Duration) string {
	switch {
	case sinceHeartbeat < 40*time.Second:
		return "HEALTHY"
	case sinceHeartbeat < 90*time.Second:
		return "LAGGING"
	default:
		return "OFFLINE"
	}
}

var healthColor = map[string]string{
	"HEALTHY": ansiCyan,
	"LAGGING": ansiPurple,
	"OFFLINE": ansiMagenta,
}

const maxStatusCommand = 25

// StatusLine renders one dashboard row. frame advances the busy spinner.
func StatusLine(st Snapshot, now time.Time, uptime time.Duration, allocMB float64, frame int) string {
	health := Health(now.Sub(st.LastHeartbeat))

	activity := " "
	modeColor := ansiReset
	if st.Mode == ModeBusy {
		activity = spinner[frame%len(spinner)]
		modeColor = ansiCyan
	}

	cmd := st.LastCommand
	if cmd == "" {
		cmd = "Waiting..."
	}
	if r := []rune(cmd); len(r) > maxStatusCommand {
		cmd = string(r[:maxStatusCommand-3]) + "..."
	}

	return fmt.Sprintf("[%s] %s%-7s%s | %s%s %s %d run(s)%s | %s | %d observer(s) | up %v | %.1fMB",
		st.LastHeartbeat.Format("15:04:05"),
		healthColor[health], health, ansiReset,
		modeColor, activity, st.Mode, st.ActiveRuns, ansiReset,
		cmd,
		st.Observers,
		uptime.Round(time.Second),
		allocMB,
	)
}
