// Provider interface and variant factory.
// Variants (Ollama, OpenAI, Mock) implement Provider so the orchestrator is
// never coupled to a specific vendor.

package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnknownProvider is returned for a provider kind outside the closed set.
	ErrUnknownProvider = errors.New("unknown llm provider")
	// ErrMissingCredential is returned when a remote provider has no API key.
	ErrMissingCredential = errors.New("llm provider credential not provided")
)

// Provider is the model-agnostic interface every backend implements.
type Provider interface {
	// Initialize verifies the backend is usable. It is called once.
	Initialize(ctx context.Context) error

	// Generate turns a prompt into text. Failures are never retried.
	Generate(ctx context.Context, p Prompt) (string, error)

	// HealthCheck reports whether the backend answers a liveness probe.
	HealthCheck(ctx context.Context) bool

	// ContextPolicy describes the history window this provider consumes.
	ContextPolicy() ContextPolicy

	// ModelInfo returns static metadata for this provider/model.
	ModelInfo() ModelMeta
}

// StatusError reports a non-success HTTP status from a provider endpoint.
type StatusError struct {
	Provider ProviderKind
	Op       string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Provider, e.Op, e.Code)
}

// NewProvider builds the variant named by cfg.Kind. It is the only place that
// branches on the kind.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.ModelName == "" {
		cfg.ModelName = DefaultModelName(cfg.Kind)
	}
	if cfg.Timeouts == (Timeouts{}) {
		cfg.Timeouts = DefaultTimeouts(cfg.Kind)
	}

	switch cfg.Kind {
	case KindOllama:
		return NewOllamaProvider(cfg), nil
	case KindOpenAI:
		return NewOpenAIProvider(cfg), nil
	case KindMock:
		return NewMockProvider(WithMockTimeouts(cfg.Timeouts)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Kind)
	}
}
