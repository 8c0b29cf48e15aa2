package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rahul/medcrew/internal/agent"
	"github.com/rahul/medcrew/internal/governance"
	"github.com/rahul/medcrew/internal/observability"
	"github.com/rahul/medcrew/internal/store"
)

const maxUploadSize = 32 << 20

// Replier answers a caller-owned transcript.
type Replier interface {
	Reply(ctx context.Context, transcript []agent.Message) (agent.Message, error)
}

// DocumentFetcher downloads a document by URL and returns its text.
type DocumentFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// TranscriptStore exposes the transcripts kept for the chat gateways.
type TranscriptStore interface {
	Messages(chatID string, limit int) ([]store.StoredMessage, error)
	ClearHistory(chatID string) error
}

// HTTPConfig holds the dependencies of the HTTP gateway.
type HTTPConfig struct {
	Addr           string
	AllowedOrigins []string
	Analyzer       Analyzer
	Conversation   Replier
	Documents      DocumentReader
	Fetcher        DocumentFetcher
	Transcripts    TranscriptStore
	Policy         governance.PolicyEngine
	Logger         *slog.Logger
}

// HTTPGateway serves the analysis pipeline and the conversational stage as a JSON API.
type HTTPGateway struct {
	Server *http.Server
	cfg    HTTPConfig
	log    *slog.Logger
}

type AnalyzeResponse struct {
	RunID    string             `json:"run_id,omitempty"`
	Report   string             `json:"report,omitempty"`
	Partial  bool               `json:"partial"`
	Results  []agent.TaskResult `json:"results,omitempty"`
	Duration string             `json:"duration,omitempty"`
	Error    string             `json:"error,omitempty"`
}

type ChatRequest struct {
	Messages []agent.Message `json:"messages"`
}

type ChatResponse struct {
	Message *agent.Message `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func NewHTTPGateway(cfg HTTPConfig) *HTTPGateway {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	g := &HTTPGateway{cfg: cfg, log: log.With("gateway", "http")}
	g.Server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           g.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// Routes builds the router. It is exported for tests.
func (g *HTTPGateway) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(g.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: g.cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", g.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/analyze", g.analyze)
	r.Post("/api/chat", g.chat)
	r.Get("/api/chats/{chatID}/messages", g.transcript)
	r.Delete("/api/chats/{chatID}", g.clearTranscript)
	return r
}

func (g *HTTPGateway) Start() error {
	g.log.Info("API server starting", "addr", g.cfg.Addr)
	if err := g.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *HTTPGateway) Send(chatID string, text string) error {
	return fmt.Errorf("http gateway cannot push messages (chat %s)", chatID)
}

func (g *HTTPGateway) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return g.Server.Shutdown(ctx)
}

func (g *HTTPGateway) health(w http.ResponseWriter, r *http.Request) {
	snap := observability.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"role":           snap.Role,
		"active":         snap.Active,
		"last_heartbeat": snap.LastHeartbeat,
	})
}

// analyze accepts a form with a clinical_input field and an optional
// document file or document_url.
func (g *HTTPGateway) analyze(w http.ResponseWriter, r *http.Request) {
	if g.cfg.Analyzer == nil {
		writeJSON(w, http.StatusNotImplemented, AnalyzeResponse{Error: "analysis is not configured"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(maxUploadSize)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, AnalyzeResponse{Error: "invalid form: " + err.Error()})
		return
	}

	documentText := ""
	if file, header, err := r.FormFile("document"); err == nil {
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, AnalyzeResponse{Error: "failed to read document"})
			return
		}
		if g.cfg.Documents != nil {
			documentText, err = g.cfg.Documents.Extract(header.Filename, data)
			if err != nil {
				g.log.Warn("document extraction failed", "file", header.Filename, "error", err)
				documentText = ""
			}
		}
	}

	if docURL := strings.TrimSpace(r.FormValue("document_url")); docURL != "" && documentText == "" && g.cfg.Fetcher != nil {
		documentText, err = g.cfg.Fetcher.Fetch(r.Context(), docURL)
		if err != nil {
			g.log.Warn("document download failed", "url", docURL, "error", err)
			documentText = ""
		}
	}

	payload, err := agent.ComposePayload(r.FormValue("clinical_input"), documentText)
	if err != nil {
		writeJSON(w, statusFor(err), AnalyzeResponse{Error: err.Error()})
		return
	}

	report, err := g.cfg.Analyzer.Run(r.Context(), payload)
	resp := AnalyzeResponse{}
	if report != nil {
		resp.RunID = report.RunID
		resp.Report = report.Markdown()
		resp.Partial = report.Partial
		resp.Results = report.Results
		resp.Duration = report.Duration.String()
	}
	if err != nil {
		g.log.Error("analysis failed", "error", err)
		resp.Error = err.Error()
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// chat answers a transcript supplied in full by the caller; nothing is stored.
func (g *HTTPGateway) chat(w http.ResponseWriter, r *http.Request) {
	if g.cfg.Conversation == nil {
		writeJSON(w, http.StatusNotImplemented, ChatResponse{Error: "chat is not configured"})
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadSize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ChatResponse{Error: "invalid request body"})
		return
	}
	for i, m := range req.Messages {
		if m.Role != agent.RoleUser && m.Role != agent.RoleAssistant {
			writeJSON(w, http.StatusBadRequest, ChatResponse{Error: fmt.Sprintf("message %d: unknown role %q", i, m.Role)})
			return
		}
	}

	if g.cfg.Policy != nil && len(req.Messages) > 0 {
		last := req.Messages[len(req.Messages)-1]
		err := governance.Check(r.Context(), g.cfg.Policy, governance.Request{Source: governance.SourceChat, Text: last.Content})
		if err != nil {
			writeJSON(w, statusFor(err), ChatResponse{Error: err.Error()})
			return
		}
	}

	reply, err := g.cfg.Conversation.Reply(r.Context(), req.Messages)
	if err != nil {
		g.log.Error("chat reply failed", "error", err)
		writeJSON(w, statusFor(err), ChatResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Message: &reply})
}

// transcript lists the stored messages of a Telegram or Discord chat.
func (g *HTTPGateway) transcript(w http.ResponseWriter, r *http.Request) {
	if g.cfg.Transcripts == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "transcripts are not configured"})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	chatID := chi.URLParam(r, "chatID")
	msgs, err := g.cfg.Transcripts.Messages(chatID, limit)
	if err != nil {
		g.log.Error("failed to load transcript", "chat", chatID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load transcript"})
		return
	}
	if msgs == nil {
		msgs = []store.StoredMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat_id": chatID, "messages": msgs})
}

func (g *HTTPGateway) clearTranscript(w http.ResponseWriter, r *http.Request) {
	if g.cfg.Transcripts == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "transcripts are not configured"})
		return
	}
	chatID := chi.URLParam(r, "chatID")
	if err := g.cfg.Transcripts.ClearHistory(chatID); err != nil {
		g.log.Error("failed to clear transcript", "chat", chatID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to clear transcript"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	var stageErr *agent.StageError
	switch {
	case errors.Is(err, agent.ErrEmptyInput), errors.Is(err, governance.ErrDenied):
		return http.StatusBadRequest
	case errors.As(err, &stageErr):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
