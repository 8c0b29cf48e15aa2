package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rahul/medcrew/internal/agent"
	"github.com/rahul/medcrew/internal/governance"
	"github.com/rahul/medcrew/internal/observability"
	"github.com/rahul/medcrew/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReplier struct {
	got []agent.Message
	err error
}

func (f *fakeReplier) Reply(_ context.Context, transcript []agent.Message) (agent.Message, error) {
	f.got = transcript
	if f.err != nil {
		return agent.Message{}, f.err
	}
	if len(transcript) == 0 {
		return agent.Message{}, agent.ErrEmptyInput
	}
	return agent.Message{Role: agent.RoleAssistant, Content: "Olá!"}, nil
}

func newTestServer(t *testing.T, cfg HTTPConfig) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHTTPGateway(cfg).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTP_AnalyzeMultipart(t *testing.T) {
	analyzer := &fakeAnalyzer{report: &agent.Report{RunID: "run-1", Final: "# Report", Results: []agent.TaskResult{{TaskID: "report", Output: "# Report"}}}}
	srv := newTestServer(t, HTTPConfig{Analyzer: analyzer, Documents: fakeDocuments{text: "EEG: normal"}})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("clinical_input", "Seizure last night"))
	fw, err := mw.CreateFormFile("document", "eeg.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/analyze", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out AnalyzeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, "# Report", out.Report)
	assert.False(t, out.Partial)

	require.Len(t, analyzer.inputs, 1)
	assert.Contains(t, analyzer.inputs[0], "Seizure last night")
	assert.Contains(t, analyzer.inputs[0], "EEG: normal")
}

func TestHTTP_AnalyzeEmpty(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	srv := newTestServer(t, HTTPConfig{Analyzer: analyzer})

	resp, err := http.PostForm(srv.URL+"/api/analyze", url.Values{"clinical_input": {"   "}})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, analyzer.inputs)
}

func TestHTTP_AnalyzePartial(t *testing.T) {
	analyzer := &fakeAnalyzer{
		report: &agent.Report{RunID: "run-2", Partial: true, Results: []agent.TaskResult{{TaskID: "anamnesis", Output: "summary"}}},
		err:    &agent.StageError{TaskID: "differential", StageID: "neurologist", Attempts: 3, Err: errors.New("timeout")},
	}
	srv := newTestServer(t, HTTPConfig{Analyzer: analyzer})

	resp, err := http.PostForm(srv.URL+"/api/analyze", url.Values{"clinical_input": {"case"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var out AnalyzeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Partial)
	assert.Len(t, out.Results, 1)
	assert.Contains(t, out.Report, "## anamnesis")
	assert.Contains(t, out.Error, "differential")
}

func TestHTTP_Chat(t *testing.T) {
	replier := &fakeReplier{}
	srv := newTestServer(t, HTTPConfig{Conversation: replier})

	resp, err := http.Post(srv.URL+"/api/chat", "application/json",
		strings.NewReader(`{"messages":[{"role":"user","content":"oi"}]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Message)
	assert.Equal(t, agent.RoleAssistant, out.Message.Role)
	assert.Equal(t, []agent.Message{{Role: agent.RoleUser, Content: "oi"}}, replier.got)
}

func TestHTTP_ChatRejects(t *testing.T) {
	engine := governance.NewDefaultPolicyEngine()
	require.NoError(t, engine.DenyPattern(`(?i)dosage`))
	srv := newTestServer(t, HTTPConfig{Conversation: &fakeReplier{}, Policy: engine})

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"messages":`},
		{"unknown role", `{"messages":[{"role":"system","content":"x"}]}`},
		{"empty transcript", `{"messages":[]}`},
		{"denied", `{"messages":[{"role":"user","content":"what dosage?"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, HTTPConfig{})
	run := observability.Track(observability.RolePipeline, "run-1", 4)
	run.Step("differential", 1, 1)
	defer run.End()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "PIPELINE", health["role"])
	active, ok := health["active"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, active)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTP_NotConfigured(t *testing.T) {
	srv := newTestServer(t, HTTPConfig{})

	resp, err := http.PostForm(srv.URL+"/api/analyze", url.Values{"clinical_input": {"case"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

type fakeFetcher struct{ urls []string }

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (string, error) {
	f.urls = append(f.urls, rawURL)
	return "Lumbar puncture: normal", nil
}

func TestHTTP_AnalyzeDocumentURL(t *testing.T) {
	analyzer := &fakeAnalyzer{report: &agent.Report{Final: "# Report"}}
	fetcher := &fakeFetcher{}
	srv := newTestServer(t, HTTPConfig{Analyzer: analyzer, Fetcher: fetcher})

	resp, err := http.PostForm(srv.URL+"/api/analyze", url.Values{"document_url": {"https://lab.example/lp.pdf"}})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"https://lab.example/lp.pdf"}, fetcher.urls)
	require.Len(t, analyzer.inputs, 1)
	assert.Contains(t, analyzer.inputs[0], "Lumbar puncture: normal")
}

func TestHTTP_Transcripts(t *testing.T) {
	history, err := store.NewHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer history.Close()
	require.NoError(t, history.AddMessage("42", "user", "dor de cabeça"))
	require.NoError(t, history.AddMessage("42", "assistant", "há quanto tempo?"))

	srv := newTestServer(t, HTTPConfig{Transcripts: history})

	resp, err := http.Get(srv.URL + "/api/chats/42/messages?limit=10")
	require.NoError(t, err)
	var out struct {
		ChatID   string                `json:"chat_id"`
		Messages []store.StoredMessage `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, "dor de cabeça", out.Messages[0].Content)

	resp, err = http.Get(srv.URL + "/api/chats/42/messages?limit=zero")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/chats/42", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	msgs, err := history.Messages("42", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
