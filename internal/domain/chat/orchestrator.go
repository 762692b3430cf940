// Package chat provides the Orchestrator: it owns the active LLM provider,
// applies the mock fallback policy, drives each chat turn against the
// conversation store and aggregates service metrics.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/matiasleandrokruk/scalechat/internal/domain/conversation"
	"github.com/matiasleandrokruk/scalechat/internal/infra/eventbus"
	"github.com/matiasleandrokruk/scalechat/internal/infra/llm"
)

var (
	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("orchestrator already initialized")
	// ErrNotInitialized is the generation failure reported before Initialize.
	ErrNotInitialized = errors.New("orchestrator not initialized")
)

// TopicTurn is the bus topic carrying a TurnEvent for every processed turn.
const TopicTurn = "chat.turn"

const apologyPrefix = "I apologize, but I encountered an error processing your message: "

// State is the orchestrator lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// GenerationError wraps a provider failure for one turn.
type GenerationError struct {
	ConversationID string
	Provider       llm.ProviderKind
	Err            error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate for conversation %q via %s: %v", e.ConversationID, e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Result is the structured outcome of one turn. Text is always displayable:
// the model answer when OK, an apology otherwise.
type Result struct {
	Text     string
	OK       bool
	Degraded bool
	Latency  time.Duration
	Err      error
}

// Status describes the active provider.
type Status struct {
	State           State            `json:"state"`
	ProviderKind    llm.ProviderKind `json:"provider_kind"`
	ModelName       string           `json:"model_name"`
	Initialized     bool             `json:"initialized"`
	ModelLoaded     bool             `json:"model_loaded"`
	DegradedReason  string           `json:"degraded_reason,omitempty"`
	LastHealthCheck *time.Time       `json:"last_health_check,omitempty"`
}

// TurnEvent is published on TopicTurn after every turn.
type TurnEvent struct {
	ConversationID string
	Provider       llm.ProviderKind
	Model          string
	OK             bool
	Degraded       bool
	Latency        time.Duration
	Error          string
	At             time.Time
}

// ProviderFactory builds a provider from its configuration.
type ProviderFactory func(llm.ProviderConfig) (llm.Provider, error)

// Orchestrator coordinates provider, conversation store and metrics.
type Orchestrator struct {
	store       *conversation.Store
	locks       *conversation.KeyedMutex
	newProvider ProviderFactory
	fallback    func() llm.Provider
	logger      *slog.Logger
	bus         eventbus.EventBus
	metrics     *Metrics

	mu             sync.RWMutex
	state          State
	provider       llm.Provider
	degradedReason string
	lastHealth     time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithEventBus publishes a TurnEvent per processed turn.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithProviderFactory replaces llm.NewProvider.
func WithProviderFactory(f ProviderFactory) Option {
	return func(o *Orchestrator) { o.newProvider = f }
}

// WithFallback replaces the mock used when initialization fails.
func WithFallback(f func() llm.Provider) Option {
	return func(o *Orchestrator) { o.fallback = f }
}

// New creates an uninitialized Orchestrator backed by store.
func New(store *conversation.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		locks:       conversation.NewKeyedMutex(),
		newProvider: llm.NewProvider,
		fallback:    func() llm.Provider { return llm.NewMockProvider() },
		logger:      slog.Default(),
		metrics:     newMetrics(time.Now()),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Initialize builds and initializes the configured provider. Any failure is
// logged and replaced by the mock provider, leaving the orchestrator Degraded;
// the cause is reported by Status. Only a repeated call returns an error.
func (o *Orchestrator) Initialize(ctx context.Context, cfg llm.ProviderConfig) (State, error) {
	o.mu.Lock()
	if o.state != StateUninitialized {
		st := o.state
		o.mu.Unlock()
		return st, ErrAlreadyInitialized
	}
	o.state = StateInitializing
	o.mu.Unlock()

	o.logger.Info("initializing llm provider", "provider", cfg.Kind, "model", cfg.ModelName)

	p, err := o.safeNewProvider(cfg)
	if err == nil {
		err = safeInitialize(ctx, p)
	}
	if err == nil {
		o.mu.Lock()
		o.provider = p
		o.state = StateReady
		o.mu.Unlock()
		o.logger.Info("llm provider ready", "provider", cfg.Kind, "model", p.ModelInfo().ID)
		return StateReady, nil
	}

	o.logger.Error("llm provider initialization failed, falling back to mock",
		"provider", cfg.Kind, "error", err)

	mock := o.fallback()
	if mockErr := safeInitialize(ctx, mock); mockErr != nil {
		o.logger.Warn("mock provider initialization interrupted", "error", mockErr)
	}

	o.mu.Lock()
	o.provider = mock
	o.state = StateDegraded
	o.degradedReason = err.Error()
	o.mu.Unlock()
	return StateDegraded, nil
}

// ProcessMessage runs one chat turn and always returns displayable text.
func (o *Orchestrator) ProcessMessage(ctx context.Context, conversationID, text string) string {
	return o.Process(ctx, conversationID, text).Text
}

// Process runs one chat turn. Turns on the same conversation are serialized in
// arrival order; distinct conversations proceed concurrently. It never panics
// and never returns an error: failures are reported through Result.
func (o *Orchestrator) Process(ctx context.Context, conversationID, text string) Result {
	start := time.Now()

	o.mu.RLock()
	p, degraded := o.provider, o.state == StateDegraded
	o.mu.RUnlock()

	unlock := o.locks.Lock(conversationID)
	defer unlock()

	var (
		reply string
		err   error
		kind  llm.ProviderKind
		model string
	)
	if p == nil {
		o.store.AppendMessage(conversationID, conversation.NewMessage(llm.RoleUser, text))
		err = ErrNotInitialized
	} else {
		meta := p.ModelInfo()
		kind, model = meta.Provider, meta.ID

		policy := p.ContextPolicy()
		history := o.store.GetContext(conversationID, policy.Window)
		o.store.AppendMessage(conversationID, conversation.NewMessage(llm.RoleUser, text))

		reply, err = safeGenerate(ctx, p, buildPrompt(policy, history, text))
	}
	elapsed := time.Since(start)

	if err != nil {
		genErr := &GenerationError{ConversationID: conversationID, Provider: kind, Err: err}
		o.metrics.recordFailure(elapsed)
		o.logger.Error("chat turn failed",
			"conversation_id", conversationID, "provider", kind, "latency_ms", elapsed.Milliseconds(), "error", err)
		o.publish(TurnEvent{ConversationID: conversationID, Provider: kind, Model: model, Degraded: degraded,
			Latency: elapsed, Error: err.Error(), At: time.Now().UTC()})
		return Result{Text: apologyPrefix + err.Error(), Degraded: degraded, Latency: elapsed, Err: genErr}
	}

	o.store.AppendMessage(conversationID, conversation.NewMessage(llm.RoleAssistant, reply))
	o.metrics.recordSuccess(elapsed)
	o.logger.Info("chat turn processed",
		"conversation_id", conversationID, "provider", kind, "latency_ms", elapsed.Milliseconds())
	o.publish(TurnEvent{ConversationID: conversationID, Provider: kind, Model: model, OK: true, Degraded: degraded,
		Latency: elapsed, At: time.Now().UTC()})
	return Result{Text: reply, OK: true, Degraded: degraded, Latency: elapsed}
}

// HealthCheck reports provider liveness. In the Degraded state it is always
// true; consult Status to tell a degraded service from a healthy one.
func (o *Orchestrator) HealthCheck(ctx context.Context) bool {
	o.mu.RLock()
	p, state := o.provider, o.state
	o.mu.RUnlock()

	var healthy bool
	switch {
	case p == nil:
		healthy = false
	case state == StateDegraded:
		healthy = true
	default:
		healthy = safeHealthCheck(ctx, p)
	}

	o.mu.Lock()
	o.lastHealth = time.Now().UTC()
	o.mu.Unlock()

	if !healthy {
		o.logger.Warn("health check failed", "state", state)
	}
	return healthy
}

// Status returns the lifecycle state and active provider identity.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	st := Status{
		State:          o.state,
		Initialized:    o.state == StateReady || o.state == StateDegraded,
		ModelLoaded:    o.state == StateReady,
		DegradedReason: o.degradedReason,
	}
	if o.provider != nil {
		meta := o.provider.ModelInfo()
		st.ProviderKind, st.ModelName = meta.Provider, meta.ID
	}
	if !o.lastHealth.IsZero() {
		t := o.lastHealth
		st.LastHealthCheck = &t
	}
	return st
}

// State returns the lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Metrics returns a snapshot of the service counters.
func (o *Orchestrator) Metrics() MetricsSnapshot {
	return o.metrics.Snapshot()
}

// Conversations exposes the backing store.
func (o *Orchestrator) Conversations() *conversation.Store { return o.store }

// Close drops all conversation history.
func (o *Orchestrator) Close() {
	o.logger.Info("clearing conversation history", "conversations", o.store.Count())
	o.store.Clear()
}

func (o *Orchestrator) publish(evt TurnEvent) {
	if o.bus != nil {
		o.bus.Publish(TopicTurn, evt)
	}
}

// ─── panic guards ────────────────────────────────────────────────────────────

func (o *Orchestrator) safeNewProvider(cfg llm.ProviderConfig) (p llm.Provider, err error) {
	defer recoverInto(&err)
	return o.newProvider(cfg)
}

func safeInitialize(ctx context.Context, p llm.Provider) (err error) {
	defer recoverInto(&err)
	return p.Initialize(ctx)
}

func safeGenerate(ctx context.Context, p llm.Provider, prompt llm.Prompt) (text string, err error) {
	defer recoverInto(&err)
	return p.Generate(ctx, prompt)
}

func safeHealthCheck(ctx context.Context, p llm.Provider) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return p.HealthCheck(ctx)
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("provider panic: %v", r)
	}
}
