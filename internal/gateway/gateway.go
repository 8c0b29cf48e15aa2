package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/rahul/medcrew/internal/agent"
	"github.com/rahul/medcrew/internal/governance"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start begins the message listening loop
	Start() error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Analyzer runs the analysis pipeline on a composed case payload.
type Analyzer interface {
	Run(ctx context.Context, input string) (*agent.Report, error)
}

// ChatBrain answers chat messages and can forget a chat.
type ChatBrain interface {
	agent.Brain
	Reset(chatID string) error
}

// DocumentReader turns an uploaded file into plain text.
type DocumentReader interface {
	Extract(name string, data []byte) (string, error)
}

// Incoming is a message received by any gateway, with an optional attachment.
type Incoming struct {
	ChatID   string
	Text     string
	FileName string
	File     []byte
}

const welcomeText = `Olá! I am a clinical decision support assistant.

Send me a message to talk about symptoms, or use:
/analyze <clinical data> to run the full specialist analysis (a PDF can be attached with /analyze as caption)
/reset to clear our conversation

I am not a doctor. Always consult a health professional.`

const analyzeUsage = "Usage: /analyze <clinical data>, or attach a document with /analyze as caption."

// Dispatcher routes gateway messages to the chat brain or the pipeline.
// It holds no transport state, so every gateway shares it.
type Dispatcher struct {
	Brain     ChatBrain
	Analyzer  Analyzer
	Documents DocumentReader
	log       *slog.Logger
}

func NewDispatcher(brain ChatBrain, analyzer Analyzer, documents DocumentReader, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{Brain: brain, Analyzer: analyzer, Documents: documents, log: log}
}

// Handle returns the reply for one incoming message.
func (d *Dispatcher) Handle(ctx context.Context, in Incoming) string {
	cmd, rest := parseCommand(in.Text)

	switch cmd {
	case "/start", "/help":
		return welcomeText
	case "/reset":
		if err := d.Brain.Reset(in.ChatID); err != nil {
			d.log.Error("failed to reset chat", "chat", in.ChatID, "error", err)
			return "I could not clear the conversation, please try again."
		}
		return "Conversation cleared."
	case "/analyze":
		return d.analyze(ctx, in.ChatID, rest, in)
	}

	input := strings.TrimSpace(in.Text)
	if len(in.File) > 0 {
		payload, err := agent.ComposePayload(input, d.documentText(in))
		if err != nil {
			return "I could not read anything from that document."
		}
		input = payload
	}
	if input == "" {
		return welcomeText
	}

	reply, err := d.Brain.Think(ctx, in.ChatID, input)
	if err != nil {
		d.log.Error("chat reply failed", "chat", in.ChatID, "error", err)
		return userError(err)
	}
	return reply
}

func (d *Dispatcher) analyze(ctx context.Context, chatID, clinical string, in Incoming) string {
	if d.Analyzer == nil {
		return "Analysis is not available on this gateway."
	}
	payload, err := agent.ComposePayload(clinical, d.documentText(in))
	if err != nil {
		return analyzeUsage
	}

	d.log.Info("analysis requested", "chat", chatID, "payloadLen", len(payload))
	report, err := d.Analyzer.Run(ctx, payload)
	if err != nil {
		d.log.Error("analysis failed", "chat", chatID, "error", err)
		if report != nil && len(report.Results) > 0 {
			return report.Markdown() + "\n\n" + userError(err)
		}
		return userError(err)
	}
	return report.Markdown()
}

func (d *Dispatcher) documentText(in Incoming) string {
	if len(in.File) == 0 || d.Documents == nil {
		return ""
	}
	text, err := d.Documents.Extract(in.FileName, in.File)
	if err != nil {
		d.log.Warn("document extraction failed", "file", in.FileName, "error", err)
		return ""
	}
	return text
}

// parseCommand splits "/cmd@bot rest" into "/cmd" and "rest".
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	cmd, rest := text, ""
	if i := strings.IndexAny(text, " \t\r\n"); i >= 0 {
		cmd, rest = text[:i], text[i+1:]
	}
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), strings.TrimSpace(rest)
}

func userError(err error) string {
	var stageErr *agent.StageError
	switch {
	case errors.Is(err, agent.ErrEmptyInput):
		return analyzeUsage
	case errors.Is(err, governance.ErrDenied):
		return "This request is not allowed by the system policy."
	case errors.As(err, &stageErr):
		return fmt.Sprintf("The analysis stopped at the %q step. Please try again later.", stageErr.TaskID)
	default:
		return "I'm having trouble thinking right now..."
	}
}

// SplitMessage cuts text into chunks of at most limit runes, preferring
// paragraph and line boundaries.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for utf8.RuneCountInString(text) > limit {
		cut := byteOffset(text, limit)
		head := text[:cut]
		if i := strings.LastIndex(head, "\n\n"); i > 0 {
			cut = i
		} else if i := strings.LastIndex(head, "\n"); i > 0 {
			cut = i
		} else if i := strings.LastIndex(head, " "); i > 0 {
			cut = i
		}
		chunks = append(chunks, strings.TrimRight(text[:cut], " \n"))
		text = strings.TrimLeft(text[cut:], " \n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// byteOffset returns the byte index just after the first n runes of s.
func byteOffset(s string, n int) int {
	i := 0
	for n > 0 && i < len(s) {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		n--
	}
	return i
}
