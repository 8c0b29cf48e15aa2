package agent

import (
	"fmt"
	"strings"
	"time"
)

// Report is the outcome of one pipeline run.
type Report struct {
	RunID     string        `json:"run_id"`
	Input     string        `json:"input"`
	Results   []TaskResult  `json:"results"`
	Final     string        `json:"final"`
	Partial   bool          `json:"partial"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Markdown renders the report for display. A complete run renders the final
// synthesis; a partial run renders every completed stage under its own heading.
func (r *Report) Markdown() string {
	if !r.Partial {
		return r.Final
	}
	var b strings.Builder
	b.WriteString("> **Partial report.** The analysis stopped before the final synthesis; the completed stages are shown below.\n")
	for _, res := range r.Results {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", res.TaskID, strings.TrimSpace(res.Output))
	}
	return b.String()
}
