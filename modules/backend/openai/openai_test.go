package openai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestBackend(t *testing.T, baseURL string, mutate func(*Config)) *OpenAI {
	t.Helper()

	o := &OpenAI{}
	o.config = Config{APIKey: "test-key", BaseURL: baseURL}
	o.config.defaults()
	if mutate != nil {
		mutate(&o.config)
	}
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	appCtx := core.NewAppContext(testLogger(), t.TempDir())
	if err := o.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	return o
}

func TestOpenAI_ModuleInfo(t *testing.T) {
	t.Parallel()

	o := &OpenAI{}
	info := o.ModuleInfo()
	if info.ID != "backend.openai" {
		t.Errorf("ID = %q, want %q", info.ID, "backend.openai")
	}
	if _, ok := info.New().(*OpenAI); !ok {
		t.Error("New() should return *OpenAI")
	}
}

func TestOpenAI_ConfigureDefaults(t *testing.T) {
	t.Parallel()

	var node yaml.Node
	if err := yaml.Unmarshal([]byte(`api_key: "sk-test"`), &node); err != nil {
		t.Fatalf("parse yaml: %v", err)
	}

	o := &OpenAI{}
	if err := o.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if o.config.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %q, want default", o.config.BaseURL)
	}
	if o.config.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q, want gpt-4o-mini", o.config.Model)
	}
	if o.config.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v, want 60s", o.config.Timeout)
	}
	if o.config.ContextWindow != 128000 {
		t.Errorf("ContextWindow = %d, want 128000 for gpt-4o prefix", o.config.ContextWindow)
	}
}

func TestLookupContextWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  int
	}{
		{"gpt-4o-mini", 128000},
		{"gpt-4o", 128000},
		{"gpt-4-turbo-preview", 128000},
		{"gpt-4", 8192},
		{"gpt-3.5-turbo", 16385},
		{"o1-preview", 200000},
		{"some-unknown-model", 16385},
	}
	for _, tt := range tests {
		if got := lookupContextWindow(tt.model); got != tt.want {
			t.Errorf("lookupContextWindow(%q) = %d, want %d", tt.model, got, tt.want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		c := Config{APIKey: "sk-test"}
		c.defaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", nil, false},
		{"missing api key", func(c *Config) { c.APIKey = "" }, true},
		{"bad scheme", func(c *Config) { c.BaseURL = "ftp://example.com" }, true},
		{"negative window", func(c *Config) { c.ContextWindow = -1 }, true},
		{"negative max tokens", func(c *Config) { c.MaxTokens = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			err := cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpenAI_Complete(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-4o-mini",
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hello there"}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17},
		})
	}))
	defer srv.Close()

	o := newTestBackend(t, srv.URL, nil)

	got, err := o.Complete(context.Background(), backend.CompletionRequest{
		Messages: []backend.Message{
			{Role: backend.MessageRoleSystem, Content: "be brief"},
			{Role: backend.MessageRoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if got.Text != "hello there" {
		t.Errorf("Text = %q", got.Text)
	}
	if got.Usage.PromptTokens != 12 || got.Usage.CompletionTokens != 5 {
		t.Errorf("Usage = %+v", got.Usage)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("wire messages = %+v", gotReq.Messages)
	}
}

func TestOpenAI_CompleteCredentialOverride(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	o := newTestBackend(t, srv.URL, nil)

	_, err := o.Complete(context.Background(), backend.CompletionRequest{
		Messages:   []backend.Message{{Role: backend.MessageRoleUser, Content: "hi"}},
		Credential: "sk-user-own-key",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if gotAuth != "Bearer sk-user-own-key" {
		t.Errorf("Authorization = %q, want user override", gotAuth)
	}
}

func TestOpenAI_CompleteImageContent(t *testing.T) {
	t.Parallel()

	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	o := newTestBackend(t, srv.URL, nil)

	_, err := o.Complete(context.Background(), backend.CompletionRequest{
		Messages: []backend.Message{{
			Role:    backend.MessageRoleUser,
			Content: "what is this?",
			Images:  []string{"https://example.com/cat.png"},
		}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	msgs, ok := raw["messages"].([]any)
	if !ok || len(msgs) != 1 {
		t.Fatalf("messages = %v", raw["messages"])
	}
	blocks, ok := msgs[0].(map[string]any)["content"].([]any)
	if !ok || len(blocks) != 2 {
		t.Fatalf("content = %v, want 2 blocks", msgs[0].(map[string]any)["content"])
	}
}

func TestOpenAI_CompleteErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limit", http.StatusTooManyRequests, `{"error":"slow down"}`, backend.ErrRateLimit},
		{"bad key", http.StatusUnauthorized, `{"error":"invalid key"}`, backend.ErrCredential},
		{"forbidden", http.StatusForbidden, `{"error":"nope"}`, backend.ErrCredential},
		{"server error", http.StatusInternalServerError, "boom", backend.ErrUnavailable},
		{"context length", http.StatusBadRequest, `{"error":{"code":"context_length_exceeded"}}`, backend.ErrContextLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			o := newTestBackend(t, srv.URL, nil)
			_, err := o.Complete(context.Background(), backend.CompletionRequest{
				Messages: []backend.Message{{Role: backend.MessageRoleUser, Content: "hi"}},
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOpenAI_HealthCheck(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	o := newTestBackend(t, srv.URL, nil)
	if err := o.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestOpenAI_HealthCheckDown(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	o := newTestBackend(t, srv.URL, nil)
	if err := o.HealthCheck(context.Background()); !errors.Is(err, backend.ErrUnavailable) {
		t.Errorf("HealthCheck error = %v, want ErrUnavailable", err)
	}
}

func TestOpenAI_ThreadLifecycle(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads", func(w http.ResponseWriter, r *http.Request) {
		if beta := r.Header.Get("OpenAI-Beta"); beta != "assistants=v2" {
			t.Errorf("OpenAI-Beta = %q", beta)
		}
		_ = json.NewEncoder(w).Encode(threadObject{ID: "thread_abc"})
	})
	mux.HandleFunc("POST /threads/thread_abc/messages", func(w http.ResponseWriter, r *http.Request) {
		var req appendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode append: %v", err)
		}
		if req.Role != "user" {
			t.Errorf("append role = %q", req.Role)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /threads/thread_abc/runs", func(w http.ResponseWriter, r *http.Request) {
		var req startRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode run: %v", err)
		}
		if req.AssistantID != "asst_1" {
			t.Errorf("assistant_id = %q", req.AssistantID)
		}
		_ = json.NewEncoder(w).Encode(runObject{ID: "run_1", Status: "queued"})
	})
	mux.HandleFunc("GET /threads/thread_abc/runs/run_1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(runObject{ID: "run_1", Status: "completed"})
	})
	mux.HandleFunc("GET /threads/thread_abc/messages", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"role":"assistant","content":[{"type":"text","text":{"value":"thread reply"}}]}]}`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	o := newTestBackend(t, srv.URL, func(c *Config) { c.AssistantID = "asst_1" })
	ctx := context.Background()

	threadID, err := o.CreateThread(ctx)
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if threadID != "thread_abc" {
		t.Fatalf("threadID = %q", threadID)
	}

	if err := o.AppendMessage(ctx, threadID, "hello", nil); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	runID, err := o.StartRun(ctx, threadID, backend.Settings{})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if runID != "run_1" {
		t.Fatalf("runID = %q", runID)
	}

	status, err := o.PollRun(ctx, threadID, runID)
	if err != nil {
		t.Fatalf("PollRun: %v", err)
	}
	if status != backend.RunCompleted {
		t.Errorf("status = %q, want completed", status)
	}

	msg, err := o.LatestMessage(ctx, threadID)
	if err != nil {
		t.Fatalf("LatestMessage: %v", err)
	}
	if msg.Text != "thread reply" {
		t.Errorf("Text = %q", msg.Text)
	}
}

func TestOpenAI_ThreadsRequireAssistant(t *testing.T) {
	t.Parallel()

	o := newTestBackend(t, "http://127.0.0.1:0", nil)

	if _, err := o.CreateThread(context.Background()); !errors.Is(err, backend.ErrThreadUnsupported) {
		t.Errorf("CreateThread error = %v, want ErrThreadUnsupported", err)
	}
	if _, err := o.StartRun(context.Background(), "t1", backend.Settings{}); !errors.Is(err, backend.ErrThreadUnsupported) {
		t.Errorf("StartRun error = %v, want ErrThreadUnsupported", err)
	}
}

func TestOpenAI_LatestMessageNotAssistant(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"role":"user","content":[{"type":"text","text":{"value":"mine"}}]}]}`))
	}))
	defer srv.Close()

	o := newTestBackend(t, srv.URL, nil)
	if _, err := o.LatestMessage(context.Background(), "t1"); !errors.Is(err, backend.ErrRunFailed) {
		t.Errorf("error = %v, want ErrRunFailed", err)
	}
}
