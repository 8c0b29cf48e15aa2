package agent

import (
	"fmt"
	"strings"
)

// ContextSeparator joins the outputs of a task's context, in declaration order.
const ContextSeparator = "\n\n"

type renderData struct {
	Input   string
	Context string
	Outputs map[string]string
}

// render builds the prompt of task i from the run input and the outputs of the
// tasks completed so far (indexed like p.tasks).
func (p *Pipeline) render(i int, input string, outputs []string, maxContextChars int) (string, error) {
	t := p.tasks[i]

	parts := make([]string, 0, len(t.context))
	byID := make(map[string]string, len(t.context))
	for _, ci := range t.context {
		out := truncate(outputs[ci], maxContextChars)
		parts = append(parts, out)
		byID[p.tasks[ci].ID] = out
	}
	data := renderData{
		Input:   input,
		Context: strings.Join(parts, ContextSeparator),
		Outputs: byID,
	}

	var b strings.Builder
	if err := t.tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render task %q: %w", t.ID, err)
	}

	if !t.inlinesCtx && len(parts) > 0 {
		b.WriteString("\n\nContext from previous stages:\n")
		b.WriteString(data.Context)
	}
	if exp := strings.TrimSpace(t.ExpectedOutput); exp != "" {
		b.WriteString("\n\nExpected output:\n")
		b.WriteString(exp)
	}
	return b.String(), nil
}

func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "\n... (truncated)"
}
