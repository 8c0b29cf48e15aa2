package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/rahul/medcrew/internal/observability"
)

// Role identifies the author of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DefaultConversationDescription is used when a crew definition does not
// provide its own conversational task.
const DefaultConversationDescription = `Continue this conversation in a helpful and safe way. Here is the history so far:
---
{{.Transcript}}
---
Based on the history, your role and the user's last message, write the next appropriate reply.
If the user has just greeted you, introduce yourself and explain your purpose.
If the user described symptoms, ask follow-up questions (how long, constant or intermittent, other symptoms).
If enough information has been collected, summarize the symptoms, suggest areas of investigation without diagnosing, and strongly recommend seeing an appropriate specialist.`

// RenderTranscript renders a transcript as "role: content" lines, in order.
func RenderTranscript(transcript []Message) string {
	lines := make([]string, len(transcript))
	for i, m := range transcript {
		lines[i] = fmt.Sprintf("%s: %s", m.Role, m.Content)
	}
	return strings.Join(lines, "\n")
}

// Conversation is a single stage that answers a transcript. It keeps no state
// between calls; the caller owns the transcript and passes it in every time.
type Conversation struct {
	stage     Stage
	tmpl      *template.Template
	completer Completer
	log       *slog.Logger
}

// NewConversation binds a stage and a description template to a completer.
// The template receives the rendered transcript as {{.Transcript}}; an empty
// description selects DefaultConversationDescription.
func NewConversation(stage Stage, description string, completer Completer, log *slog.Logger) (*Conversation, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if strings.TrimSpace(stage.Role) == "" {
		return nil, invalidf("conversation stage %q: role is required", stage.ID)
	}
	if strings.TrimSpace(description) == "" {
		description = DefaultConversationDescription
	}
	tmpl, err := template.New("conversation").Parse(description)
	if err != nil {
		return nil, invalidf("conversation: %v", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Conversation{stage: stage, tmpl: tmpl, completer: completer, log: log}, nil
}

// Reply produces the next assistant entry for transcript. The transcript is
// read, never modified.
func (c *Conversation) Reply(ctx context.Context, transcript []Message) (Message, error) {
	if len(transcript) == 0 {
		return Message{}, ErrEmptyInput
	}

	var b strings.Builder
	if err := c.tmpl.Execute(&b, struct{ Transcript string }{RenderTranscript(transcript)}); err != nil {
		return Message{}, fmt.Errorf("render conversation: %w", err)
	}

	track := observability.Track(observability.RoleChat, c.stage.ID, 1)
	defer track.End()

	c.log.Debug("conversation reply", "stage", c.stage.ID, "entries", len(transcript))
	out, err := c.completer.Complete(ctx, c.stage.SystemFraming(), b.String())
	if err != nil {
		observability.StageFailures.WithLabelValues(c.stage.ID).Inc()
		return Message{}, fmt.Errorf("conversation stage %q: %w", c.stage.ID, err)
	}
	return Message{Role: RoleAssistant, Content: out}, nil
}
