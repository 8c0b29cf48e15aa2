package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	ansiReset  = "\033[0m"
	ansiCyan   = "\033[96m"
	ansiYellow = "\033[93m"
	ansiRed    = "\033[91m"
	ansiDim    = "\033[2m"

	// Rows 1-9 hold the logo, row 10 the status line, logs scroll from 12.
	statusRow    = 10
	firstLogRow  = 12
	heartbeatLag = 40 * time.Second
	heartbeatOff = 90 * time.Second
)

var startTime = time.Now()

// termMu serializes terminal writes so a log line never lands in the middle
// of a status redraw.
var termMu sync.Mutex

// IsTerminal reports whether stdout is an interactive terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

type termWriter struct{}

func (termWriter) Write(p []byte) (int, error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stderr.Write(p)
}

// NewTermWriter returns a log destination that shares the dashboard's lock.
func NewTermWriter() *termWriter {
	return &termWriter{}
}

const logo = `
                       __
  ____ ___  ___  ____/ /_____________ _      __
 / __ '__ \/ _ \/ __  / ___/ ___/ _ \ | /| / /
/ / / / / /  __/ /_/ / /__/ /  /  __/ |/ |/ /
/_/ /_/ /_/\___/\__,_/\___/_/   \___/|__/|__/
     >> CLINICAL DECISION SUPPORT CREW <<`

// PrintBanner clears the screen and prints the logo centered.
func PrintBanner() {
	fmt.Print("\033[2J\033[H")
	width := termWidth()
	for _, l := range strings.Split(logo, "\n") {
		pad := max((width-len(l))/2, 0)
		fmt.Printf("%s%s%s%s\n", strings.Repeat(" ", pad), ansiCyan, l, ansiReset)
	}
}

// InitializeTerminal confines scrolling output below the status line.
func InitializeTerminal() {
	fmt.Printf("\033[%d;r\033[%d;1H", firstLogRow, firstLogRow)
}

func CleanupTerminal() {
	fmt.Print("\033[r\033[2J\033[H")
}

// PrintLiveStatus redraws the status line in place.
func PrintLiveStatus() {
	snap, now := Current(), time.Now()
	line := StatusLine(snap, now)
	if w := termWidth(); len([]rune(line)) > w {
		line = string([]rune(line)[:w])
	}
	out := fmt.Sprintf("\033[s\033[%d;1H\033[K%s%s%s\033[u", statusRow, colorFor(snap, now), line, ansiReset)

	termMu.Lock()
	fmt.Print(out)
	termMu.Unlock()
}

func colorFor(snap Snapshot, now time.Time) string {
	switch health(snap.LastHeartbeat, now) {
	case "LAGGING":
		return ansiYellow
	case "OFFLINE":
		return ansiRed
	}
	if snap.Role == RoleIdle {
		return ansiDim
	}
	return ansiCyan
}

func health(lastHeartbeat, now time.Time) string {
	switch d := now.Sub(lastHeartbeat); {
	case d < heartbeatLag:
		return "HEALTHY"
	case d < heartbeatOff:
		return "LAGGING"
	default:
		return "OFFLINE"
	}
}

// StatusLine renders the dashboard line: heartbeat health, the newest
// activity in flight, how many others run alongside it, and uptime.
func StatusLine(snap Snapshot, now time.Time) string {
	parts := []string{
		fmt.Sprintf("[%s] %s", snap.LastHeartbeat.Format("15:04:05"), health(snap.LastHeartbeat, now)),
	}
	if n := len(snap.Active); n == 0 {
		parts = append(parts, "IDLE waiting for cases")
	} else {
		parts = append(parts, describe(snap.Active[n-1]))
		if n > 1 {
			parts = append(parts, fmt.Sprintf("+%d active", n-1))
		}
	}
	parts = append(parts, "up "+now.Sub(startTime).Round(time.Second).String())
	return strings.Join(parts, " | ")
}

func describe(a Activity) string {
	id := a.ID
	if len(id) > 8 {
		id = id[:8]
	}
	switch a.Role {
	case RolePipeline:
		s := fmt.Sprintf("PIPELINE %s %s %d/%d", id, a.Step, a.Done+1, a.Total)
		if a.Attempt > 1 {
			s += fmt.Sprintf(" try %d", a.Attempt)
		}
		return s
	case RoleBatch:
		s := fmt.Sprintf("BATCH %d/%d", a.Done, a.Total)
		if a.Failed > 0 {
			s += fmt.Sprintf(" failed %d", a.Failed)
		}
		return s
	default:
		return fmt.Sprintf("%s %s", a.Role, id)
	}
}
