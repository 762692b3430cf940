package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type capturedChat struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newFakeOpenAI(t *testing.T, chatStatus int) (*httptest.Server, func() capturedChat) {
	t.Helper()

	var (
		mu   sync.Mutex
		last capturedChat
	)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`)) //nolint:errcheck
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"id":"gpt-3.5-turbo","object":"model"}]}`)) //nolint:errcheck
	})
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req capturedChat
		json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
		mu.Lock()
		last = req
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if chatStatus != 0 {
			w.WriteHeader(chatStatus)
			w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`)) //nolint:errcheck
			return
		}
		w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hi there"},"finish_reason":"stop"}]}`)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, func() capturedChat {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func openAIConfig(baseURL, key string) ProviderConfig {
	return ProviderConfig{
		Kind:       KindOpenAI,
		ModelName:  "gpt-3.5-turbo",
		BaseURL:    baseURL + "/v1",
		Credential: key,
		Timeouts:   DefaultTimeouts(KindOpenAI),
	}
}

func TestOpenAIProvider_Initialize_MissingCredential(t *testing.T) {
	t.Parallel()

	p := NewOpenAIProvider(ProviderConfig{Kind: KindOpenAI, ModelName: "gpt-3.5-turbo"})
	err := p.Initialize(context.Background())
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestOpenAIProvider_Initialize_Success(t *testing.T) {
	t.Parallel()

	srv, _ := newFakeOpenAI(t, 0)
	p := NewOpenAIProvider(openAIConfig(srv.URL, "sk-test"))
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if !p.HealthCheck(context.Background()) {
		t.Error("expected healthy")
	}
}

func TestOpenAIProvider_Initialize_BadKey_ReturnsStatusError(t *testing.T) {
	t.Parallel()

	srv, _ := newFakeOpenAI(t, 0)
	p := NewOpenAIProvider(openAIConfig(srv.URL, "sk-wrong"))
	err := p.Initialize(context.Background())
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", se.Code)
	}
	if p.HealthCheck(context.Background()) {
		t.Error("expected unhealthy with bad key")
	}
}

func TestOpenAIProvider_Generate_SendsRoleTaggedWindow(t *testing.T) {
	t.Parallel()

	srv, last := newFakeOpenAI(t, 0)
	p := NewOpenAIProvider(openAIConfig(srv.URL, "sk-test"))

	got, err := p.Generate(context.Background(), Prompt{
		Input: "hello",
		Messages: []Message{
			{Role: RoleSystem, Content: defaultSystemPrompt},
			{Role: RoleUser, Content: "hello"},
		},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "Hi there" {
		t.Errorf("expected 'Hi there', got %q", got)
	}

	req := last()
	if req.MaxTokens != remoteMaxTokens {
		t.Errorf("expected max_tokens %d, got %d", remoteMaxTokens, req.MaxTokens)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "hello" {
		t.Errorf("unexpected messages %+v", req.Messages)
	}
}

func TestOpenAIProvider_Generate_ServerError(t *testing.T) {
	t.Parallel()

	srv, _ := newFakeOpenAI(t, http.StatusServiceUnavailable)
	p := NewOpenAIProvider(openAIConfig(srv.URL, "sk-test"))

	_, err := p.Generate(context.Background(), Prompt{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 StatusError, got %v", err)
	}
}

func TestOpenAIProvider_ContextPolicy(t *testing.T) {
	t.Parallel()

	pol := NewOpenAIProvider(ProviderConfig{ModelName: "gpt-3.5-turbo"}).ContextPolicy()
	if pol.Style != StyleChat || pol.Window != 10 || pol.SystemPrompt != defaultSystemPrompt {
		t.Errorf("unexpected policy %+v", pol)
	}
}
