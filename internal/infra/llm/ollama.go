// Ollama HTTP adapter.
// OllamaProvider calls the local Ollama REST API using stdlib net/http.
// Endpoints used:
//   - GET  /api/version : runtime reachability probe
//   - GET  /api/tags    : list locally available models
//   - POST /api/pull    : download a missing model (blocking)
//   - POST /api/generate: non-streaming completion

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	mimeJSON          = "application/json"
	headerContentType = "Content-Type"

	newConversationPreamble = "This is the start of a new conversation."
	noResponseGenerated     = "No response generated"
)

// OllamaProvider implements Provider against a running Ollama instance.
type OllamaProvider struct {
	baseURL    string
	model      string
	timeouts   Timeouts
	httpClient *http.Client
}

// NewOllamaProvider creates an OllamaProvider. Per-call deadlines come from
// cfg.Timeouts, so the http.Client itself carries none.
func NewOllamaProvider(cfg ProviderConfig) *OllamaProvider {
	return &OllamaProvider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.ModelName,
		timeouts:   cfg.Timeouts,
		httpClient: &http.Client{},
	}
}

// ─── internal Ollama JSON types ──────────────────────────────────────────────

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type ollamaPullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// ─── Provider implementation ────────────────────────────────────────────────

// Initialize probes /api/version, then pulls the model if /api/tags does not
// list it.
func (p *OllamaProvider) Initialize(ctx context.Context) error {
	probeCtx, cancel := withTimeout(ctx, p.timeouts.Probe)
	defer cancel()

	if err := p.doGet(probeCtx, "/api/version", nil); err != nil {
		return fmt.Errorf("ollama initialize: runtime not accessible: %w", err)
	}

	var tags ollamaTagsResponse
	if err := p.doGet(probeCtx, "/api/tags", &tags); err != nil {
		return fmt.Errorf("ollama initialize: list models: %w", err)
	}
	if hasModel(tags, p.model) {
		return nil
	}

	if err := p.pull(ctx); err != nil {
		return fmt.Errorf("ollama initialize: %w", err)
	}
	return nil
}

// hasModel matches exact names and the implicit ":latest" tag.
func hasModel(tags ollamaTagsResponse, model string) bool {
	for _, m := range tags.Models {
		if m.Name == model || m.Name == model+":latest" {
			return true
		}
	}
	return false
}

// pull blocks until Ollama has downloaded the configured model.
func (p *OllamaProvider) pull(ctx context.Context) error {
	pullCtx, cancel := withTimeout(ctx, p.timeouts.Pull)
	defer cancel()

	body, err := json.Marshal(ollamaPullRequest{Name: p.model, Stream: false})
	if err != nil {
		return err
	}
	respBody, err := p.doPost(pullCtx, "/api/pull", body)
	if err != nil {
		return fmt.Errorf("pull model %q: %w", p.model, err)
	}
	defer respBody.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, respBody)
	return nil
}

// Generate performs one non-streaming round-trip via POST /api/generate.
func (p *OllamaProvider) Generate(ctx context.Context, prompt Prompt) (string, error) {
	genCtx, cancel := withTimeout(ctx, p.timeouts.Generate)
	defer cancel()

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  p.model,
		Prompt: prompt.Text,
		Stream: false,
	})
	if err != nil {
		return "", err
	}

	respBody, err := p.doPost(genCtx, "/api/generate", body)
	if err != nil {
		return "", err
	}
	defer respBody.Close() //nolint:errcheck

	var out ollamaGenerateResponse
	if decodeErr := json.NewDecoder(respBody).Decode(&out); decodeErr != nil {
		return "", fmt.Errorf("ollama generate: decode response: %w", decodeErr)
	}
	if out.Response == "" {
		return noResponseGenerated, nil
	}
	return out.Response, nil
}

// HealthCheck calls GET /api/version.
func (p *OllamaProvider) HealthCheck(ctx context.Context) bool {
	hcCtx, cancel := withTimeout(ctx, p.timeouts.Health)
	defer cancel()
	return p.doGet(hcCtx, "/api/version", nil) == nil
}

// ContextPolicy: the last 5 messages as a flat transcript.
func (p *OllamaProvider) ContextPolicy() ContextPolicy {
	return ContextPolicy{Style: StyleTranscript, Window: 5, Preamble: newConversationPreamble}
}

// ModelInfo returns static metadata for this provider/model.
func (p *OllamaProvider) ModelInfo() ModelMeta {
	return ModelMeta{ID: p.model, Provider: KindOllama}
}

// ─── helpers ─────────────────────────────────────────────────────────────────

// doGet issues a GET to baseURL+path and decodes JSON into out when non-nil.
func (p *OllamaProvider) doGet(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("ollama get %s: build request: %w", path, err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama get %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Provider: KindOllama, Op: "get " + path, Code: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ollama get %s: decode: %w", path, err)
	}
	return nil
}

// doPost sends a POST request to baseURL+path and returns the response body.
// Caller is responsible for closing the returned ReadCloser.
func (p *OllamaProvider) doPost(ctx context.Context, path string, body []byte) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama post %s: build request: %w", path, err)
	}
	req.Header.Set(headerContentType, mimeJSON)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama post %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close() //nolint:errcheck
		return nil, &StatusError{Provider: KindOllama, Op: "post " + path, Code: resp.StatusCode}
	}
	return resp.Body, nil
}

// withTimeout applies d when positive; a zero timeout leaves ctx untouched.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
