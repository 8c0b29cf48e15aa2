package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeRunStart    EventType = "run_start"
	EventTypeStageStart  EventType = "stage_start"
	EventTypeStageRetry  EventType = "stage_retry"
	EventTypeStageResult EventType = "stage_result"
	EventTypeRunComplete EventType = "run_complete"
	EventTypeCost        EventType = "cost"
	EventTypeHeartbeat   EventType = "heartbeat"
	EventTypeLLM         EventType = "llm"
)

// Event represents a structured audit entry.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	ChatID    string    `json:"chat_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger appends events as JSON lines to logs/events.jsonl, keeping one
// rotated .old file. A nil *Logger discards everything.
type Logger struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	out     io.Writer
}

func NewLogger(dir string) *Logger {
	if dir == "" {
		dir = "logs"
	}
	return &Logger{
		path:    filepath.Join(dir, "events.jsonl"),
		maxSize: 10 * 1024 * 1024, // 10MB
	}
}

// NewWriterLogger sends events to w instead of the rotating file.
func NewWriterLogger(w io.Writer) *Logger {
	return &Logger{out: w}
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"error": "failed to marshal event: %v"}`, err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out != nil {
		_, _ = l.out.Write(append(data, '\n'))
		return
	}
	l.writeToFile(data)
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		slog.Warn("failed to create log directory", "error", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.path)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Warn("failed to open event log", "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		slog.Warn("failed to write event log", "error", err)
	}
}

func (l *Logger) rotateLogs() {
	oldPath := l.path + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.path, oldPath)
}

// Helper methods for common events

func (l *Logger) LogRunStart(runID string, tasks int) {
	l.Log(Event{
		Type:  EventTypeRunStart,
		RunID: runID,
		Data:  map[string]any{"tasks": tasks},
	})
}

func (l *Logger) LogStageStart(runID, taskID, stageID string, attempt int) {
	l.Log(Event{
		Type:   EventTypeStageStart,
		RunID:  runID,
		TaskID: taskID,
		Data:   map[string]any{"stage": stageID, "attempt": attempt},
	})
}

func (l *Logger) LogStageRetry(runID, taskID string, attempt int, cause error) {
	l.Log(Event{
		Type:   EventTypeStageRetry,
		RunID:  runID,
		TaskID: taskID,
		Data:   map[string]any{"attempt": attempt, "error": errString(cause)},
	})
}

func (l *Logger) LogStageResult(runID, taskID, stageID string, attempts int, duration time.Duration, outputLen int) {
	l.Log(Event{
		Type:   EventTypeStageResult,
		RunID:  runID,
		TaskID: taskID,
		Data: map[string]any{
			"stage":       stageID,
			"attempts":    attempts,
			"duration_ms": duration.Milliseconds(),
			"output_len":  outputLen,
		},
	})
}

func (l *Logger) LogRunComplete(runID string, completed int, partial bool, cause error) {
	l.Log(Event{
		Type:  EventTypeRunComplete,
		RunID: runID,
		Data: map[string]any{
			"completed": completed,
			"partial":   partial,
			"error":     errString(cause),
		},
	})
}

func (l *Logger) LogCost(promptTokens, completionTokens int, model string) {
	l.Log(Event{
		Type: EventTypeCost,
		Data: map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
			"model":             model,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(model, systemPrompt, userPrompt, response string, duration time.Duration) {
	l.Log(Event{
		Type: EventTypeLLM,
		Data: map[string]any{
			"model":       model,
			"system":      systemPrompt,
			"prompt":      userPrompt,
			"response":    response,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
