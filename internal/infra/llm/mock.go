package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"
)

const (
	defaultMockInitDelay = time.Second
	defaultMockLatency   = 500 * time.Millisecond
)

// mockTemplates are selected by hashing the user input; each embeds it verbatim.
var mockTemplates = []string{
	"Thank you for your message: '%s'. This is a mock response from the LLM service.",
	"I understand you said: '%s'. I'm a demo chatbot running on Kubernetes!",
	"Hello! You mentioned: '%s'. This response is generated by a scalable LLM service.",
	"Interesting point about: '%s'. I'm designed to scale automatically based on demand.",
	"Thanks for sharing: '%s'. This chatbot demonstrates Kubernetes deployment patterns.",
}

// MockProvider is always ready and answers deterministically. It backs tests
// and the automatic fallback when the configured provider cannot initialize.
type MockProvider struct {
	initDelay time.Duration
	latency   time.Duration
	timeouts  Timeouts
}

// MockOption customizes a MockProvider.
type MockOption func(*MockProvider)

// WithMockLatency overrides the simulated generate latency.
func WithMockLatency(d time.Duration) MockOption {
	return func(m *MockProvider) { m.latency = d }
}

// WithMockInitDelay overrides the simulated initialization time.
func WithMockInitDelay(d time.Duration) MockOption {
	return func(m *MockProvider) { m.initDelay = d }
}

// WithMockTimeouts sets the per-call timeouts; Generate is bounded by
// t.Generate like every other variant.
func WithMockTimeouts(t Timeouts) MockOption {
	return func(m *MockProvider) { m.timeouts = t }
}

// NewMockProvider creates a MockProvider with the default simulated timings.
func NewMockProvider(opts ...MockOption) *MockProvider {
	m := &MockProvider{initDelay: defaultMockInitDelay, latency: defaultMockLatency, timeouts: DefaultTimeouts(KindMock)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize waits out the simulated startup and never fails unless ctx ends.
func (m *MockProvider) Initialize(ctx context.Context) error {
	return sleepCtx(ctx, m.initDelay)
}

// Generate returns MockResponse(prompt.Input) after the simulated latency.
func (m *MockProvider) Generate(ctx context.Context, prompt Prompt) (string, error) {
	genCtx, cancel := withTimeout(ctx, m.timeouts.Generate)
	defer cancel()

	if err := sleepCtx(genCtx, m.latency); err != nil {
		return "", fmt.Errorf("mock generate: %w", err)
	}
	return MockResponse(prompt.Input), nil
}

// HealthCheck always reports healthy.
func (m *MockProvider) HealthCheck(context.Context) bool { return true }

// ContextPolicy mirrors the transcript style; the mock only reads Input.
func (m *MockProvider) ContextPolicy() ContextPolicy {
	return ContextPolicy{Style: StyleTranscript, Window: 5, Preamble: newConversationPreamble}
}

// ModelInfo returns static metadata for the mock.
func (m *MockProvider) ModelInfo() ModelMeta {
	return ModelMeta{ID: DefaultModelName(KindMock), Provider: KindMock}
}

// MockTemplateIndex returns the template index chosen for text. FNV-1a keeps
// the choice stable across processes.
func MockTemplateIndex(text string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	return int(h.Sum32() % uint32(len(mockTemplates)))
}

// MockResponse renders the canned response for text.
func MockResponse(text string) string {
	return fmt.Sprintf(mockTemplates[MockTemplateIndex(text)], text)
}

// MockTemplateCount is the size of the fixed response set.
func MockTemplateCount() int { return len(mockTemplates) }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
