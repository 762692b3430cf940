// OpenAI-compatible remote adapter built on go-openai.

package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultSystemPrompt = "You are a helpful assistant."
	remoteMaxTokens     = 500
	remoteTemperature   = 0.7
	remoteWindow        = 10
)

// OpenAIProvider implements Provider against the OpenAI chat completions API
// or any server speaking the same protocol.
type OpenAIProvider struct {
	model      string
	credential string
	timeouts   Timeouts
	client     *openai.Client
}

// NewOpenAIProvider creates an OpenAIProvider. cfg.BaseURL overrides the
// default API root when set (e.g. "https://api.openai.com/v1").
func NewOpenAIProvider(cfg ProviderConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.Credential)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		model:      cfg.ModelName,
		credential: cfg.Credential,
		timeouts:   cfg.Timeouts,
		client:     openai.NewClientWithConfig(clientCfg),
	}
}

// Initialize requires a credential and checks connectivity by listing models.
func (p *OpenAIProvider) Initialize(ctx context.Context) error {
	if p.credential == "" {
		return ErrMissingCredential
	}

	probeCtx, cancel := withTimeout(ctx, p.timeouts.Probe)
	defer cancel()
	if _, err := p.client.ListModels(probeCtx); err != nil {
		return fmt.Errorf("openai initialize: %w", translateOpenAIError("list models", err))
	}
	return nil
}

// Generate sends the role-tagged window as one chat completion.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt Prompt) (string, error) {
	genCtx, cancel := withTimeout(ctx, p.timeouts.Generate)
	defer cancel()

	msgs := make([]openai.ChatCompletionMessage, len(prompt.Messages))
	for i, m := range prompt.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}

	resp, err := p.client.CreateChatCompletion(genCtx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    msgs,
		MaxTokens:   remoteMaxTokens,
		Temperature: remoteTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", translateOpenAIError("chat completion", err))
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai generate: response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// HealthCheck lists models with the short health timeout.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) bool {
	if p.credential == "" {
		return false
	}
	hcCtx, cancel := withTimeout(ctx, p.timeouts.Health)
	defer cancel()
	_, err := p.client.ListModels(hcCtx)
	return err == nil
}

// ContextPolicy: system preamble plus the last 10 messages, role-tagged.
func (p *OpenAIProvider) ContextPolicy() ContextPolicy {
	return ContextPolicy{Style: StyleChat, Window: remoteWindow, SystemPrompt: defaultSystemPrompt}
}

// ModelInfo returns static metadata for this provider/model.
func (p *OpenAIProvider) ModelInfo() ModelMeta {
	return ModelMeta{ID: p.model, Provider: KindOpenAI, MaxTokens: remoteMaxTokens}
}

// translateOpenAIError maps go-openai's HTTP errors onto StatusError so callers
// handle every provider's status failures the same way.
func translateOpenAIError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return fmt.Errorf("%w: %s", &StatusError{Provider: KindOpenAI, Op: op, Code: apiErr.HTTPStatusCode}, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &StatusError{Provider: KindOpenAI, Op: op, Code: reqErr.HTTPStatusCode}
	}
	return err
}
