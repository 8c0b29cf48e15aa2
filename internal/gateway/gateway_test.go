package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rahul/medcrew/internal/agent"
	"github.com/rahul/medcrew/internal/governance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBrain struct {
	inputs []string
	resets []string
	err    error
}

func (b *fakeBrain) Think(_ context.Context, _ string, input string) (string, error) {
	b.inputs = append(b.inputs, input)
	if b.err != nil {
		return "", b.err
	}
	return "reply to " + input, nil
}

func (b *fakeBrain) Reset(chatID string) error {
	b.resets = append(b.resets, chatID)
	return nil
}

type fakeAnalyzer struct {
	inputs []string
	report *agent.Report
	err    error
}

func (a *fakeAnalyzer) Run(_ context.Context, input string) (*agent.Report, error) {
	a.inputs = append(a.inputs, input)
	return a.report, a.err
}

type fakeDocuments struct{ text string }

func (d fakeDocuments) Extract(string, []byte) (string, error) { return d.text, nil }

func TestDispatcher_Commands(t *testing.T) {
	brain := &fakeBrain{}
	d := NewDispatcher(brain, &fakeAnalyzer{}, nil, nil)
	ctx := context.Background()

	assert.Equal(t, welcomeText, d.Handle(ctx, Incoming{ChatID: "1", Text: "/start"}))
	assert.Equal(t, "Conversation cleared.", d.Handle(ctx, Incoming{ChatID: "1", Text: "/reset@medcrew_bot"}))
	assert.Equal(t, []string{"1"}, brain.resets)
	assert.Empty(t, brain.inputs)
}

func TestDispatcher_Chat(t *testing.T) {
	brain := &fakeBrain{}
	d := NewDispatcher(brain, nil, fakeDocuments{text: "Hemoglobina 13"}, nil)
	ctx := context.Background()

	assert.Equal(t, "reply to oi", d.Handle(ctx, Incoming{ChatID: "1", Text: " oi "}))

	d.Handle(ctx, Incoming{ChatID: "1", Text: "what about this?", FileName: "exam.pdf", File: []byte("%PDF")})
	require.Len(t, brain.inputs, 2)
	assert.Contains(t, brain.inputs[1], "what about this?")
	assert.Contains(t, brain.inputs[1], "Hemoglobina 13")

	brain.err = governance.ErrDenied
	assert.Contains(t, d.Handle(ctx, Incoming{ChatID: "1", Text: "x"}), "not allowed")
}

func TestDispatcher_Analyze(t *testing.T) {
	analyzer := &fakeAnalyzer{report: &agent.Report{Final: "# Report"}}
	d := NewDispatcher(&fakeBrain{}, analyzer, fakeDocuments{text: "MRI: normal"}, nil)
	ctx := context.Background()

	out := d.Handle(ctx, Incoming{ChatID: "1", Text: "/analyze\nHeadache for 2 days", FileName: "mri.pdf", File: []byte("%PDF")})
	assert.Equal(t, "# Report", out)
	require.Len(t, analyzer.inputs, 1)
	assert.Contains(t, analyzer.inputs[0], "Headache for 2 days")
	assert.Contains(t, analyzer.inputs[0], "MRI: normal")
}

func TestDispatcher_AnalyzeEmpty(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	d := NewDispatcher(&fakeBrain{}, analyzer, nil, nil)

	assert.Equal(t, analyzeUsage, d.Handle(context.Background(), Incoming{ChatID: "1", Text: "/analyze   "}))
	assert.Empty(t, analyzer.inputs)
}

func TestDispatcher_AnalyzePartial(t *testing.T) {
	analyzer := &fakeAnalyzer{
		report: &agent.Report{Partial: true, Results: []agent.TaskResult{{TaskID: "anamnesis", Output: "summary"}}},
		err:    &agent.StageError{TaskID: "differential", StageID: "neurologist", Attempts: 3, Err: errors.New("503")},
	}
	d := NewDispatcher(&fakeBrain{}, analyzer, nil, nil)

	out := d.Handle(context.Background(), Incoming{ChatID: "1", Text: "/analyze case"})
	assert.Contains(t, out, "## anamnesis")
	assert.Contains(t, out, `"differential"`)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in, cmd, rest string
	}{
		{"/analyze patient", "/analyze", "patient"},
		{"/Analyze@bot  patient ", "/analyze", "patient"},
		{"/reset", "/reset", ""},
		{"hello /analyze", "", "hello /analyze"},
	}
	for _, tt := range tests {
		cmd, rest := parseCommand(tt.in)
		assert.Equal(t, tt.cmd, cmd, tt.in)
		assert.Equal(t, tt.rest, rest, tt.in)
	}
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, SplitMessage("short", 10))

	text := strings.Repeat("a", 8) + "\n\n" + strings.Repeat("b", 8) + "\n" + strings.Repeat("c", 8)
	assert.Equal(t, []string{"aaaaaaaa", "bbbbbbbb", "cccccccc"}, SplitMessage(text, 12))

	long := strings.Repeat("é", 25)
	chunks := SplitMessage(long, 10)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 10)
		assert.True(t, utf8.ValidString(c))
	}
	assert.Equal(t, long, strings.Join(chunks, ""))
}
