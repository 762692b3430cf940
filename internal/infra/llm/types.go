// Package llm defines the provider abstraction used by the chat orchestrator.
// All types here are shared between the Provider interface and its variants.
package llm

import (
	"fmt"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents a single turn in a conversation (role + content).
type Message struct {
	Role    Role
	Content string
}

// ProviderKind names one of the closed set of provider variants.
type ProviderKind string

const (
	KindOllama ProviderKind = "ollama"
	KindOpenAI ProviderKind = "openai"
	KindMock   ProviderKind = "mock"
)

// ParseProviderKind maps a configuration string onto a ProviderKind.
func ParseProviderKind(s string) (ProviderKind, error) {
	switch k := ProviderKind(s); k {
	case KindOllama, KindOpenAI, KindMock:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

// Timeouts bounds every network call a provider makes.
type Timeouts struct {
	Probe    time.Duration // initialization reachability probe
	Pull     time.Duration // model pull (local only)
	Generate time.Duration // one completion round-trip
	Health   time.Duration // liveness probe
}

// DefaultTimeouts returns the per-kind defaults.
func DefaultTimeouts(kind ProviderKind) Timeouts {
	switch kind {
	case KindOllama:
		return Timeouts{Probe: 10 * time.Second, Pull: 300 * time.Second, Generate: 60 * time.Second, Health: 5 * time.Second}
	case KindOpenAI:
		return Timeouts{Probe: 10 * time.Second, Generate: 30 * time.Second, Health: 5 * time.Second}
	default:
		return Timeouts{Generate: 5 * time.Second, Health: time.Second}
	}
}

// ProviderConfig is an immutable snapshot selected once at startup.
type ProviderConfig struct {
	Kind       ProviderKind
	ModelName  string
	BaseURL    string
	Credential string
	Timeouts   Timeouts
}

// DefaultModelName returns the model used when none is configured.
func DefaultModelName(kind ProviderKind) string {
	switch kind {
	case KindOllama:
		return "llama2"
	case KindOpenAI:
		return "gpt-3.5-turbo"
	default:
		return "mock"
	}
}

// MockConfig is the configuration used for the automatic fallback.
func MockConfig() ProviderConfig {
	return ProviderConfig{
		Kind:      KindMock,
		ModelName: DefaultModelName(KindMock),
		Timeouts:  DefaultTimeouts(KindMock),
	}
}

// PromptStyle selects how a context window is rendered.
type PromptStyle int

const (
	// StyleTranscript renders history as a flat "Role: content" transcript.
	StyleTranscript PromptStyle = iota
	// StyleChat sends history as a role-tagged message list.
	StyleChat
)

// ContextPolicy tells the orchestrator how much history a provider wants and
// how it should be rendered.
type ContextPolicy struct {
	Style        PromptStyle
	Window       int    // number of most recent messages to include
	SystemPrompt string // prepended for StyleChat
	Preamble     string // transcript used when the history is empty
}

// Prompt is the input to a single Generate call.
type Prompt struct {
	// Input is the latest user text, verbatim.
	Input string
	// Text is the rendered transcript prompt (StyleTranscript).
	Text string
	// Messages is the role-tagged window (StyleChat), system preamble first.
	Messages []Message
}

// ModelMeta describes the model / provider identity.
type ModelMeta struct {
	ID        string       // e.g. "llama2", "gpt-3.5-turbo"
	Provider  ProviderKind // e.g. "ollama", "openai"
	MaxTokens int          // output cap sent with each request, 0 if none
}
