// Package session tracks live streaming client sessions and routes payloads
// to exactly one of them by id.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matiasleandrokruk/scalechat/internal/infra/eventbus"
)

var (
	// ErrUnknownSession is returned when the delivery target is not registered.
	ErrUnknownSession = errors.New("unknown session")
	// ErrDuplicateSession is returned when an id is already registered.
	ErrDuplicateSession = errors.New("session already registered")
)

// Event topics published on the bus.
const (
	TopicOpened = "session.opened"
	TopicClosed = "session.closed"
)

// Close reasons carried by TopicClosed events.
const (
	ReasonDisconnect  = "disconnect"
	ReasonSendFailure = "send_failure"
	ReasonShutdown    = "shutdown"
)

// Sender is the transport-level handle of one session. Implementations must
// be safe for concurrent Send calls.
type Sender interface {
	Send(payload []byte) error
	Close() error
}

// Event describes a session lifecycle change.
type Event struct {
	SessionID string
	Reason    string
	At        time.Time
}

type entry struct {
	sender   Sender
	openedAt time.Time
}

// Manager owns the id → session mapping.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	total    atomic.Int64

	logger *slog.Logger
	bus    eventbus.EventBus
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithEventBus publishes lifecycle events to bus.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(m *Manager) { m.bus = bus }
}

// NewManager returns an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*entry),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a session. It fails with ErrDuplicateSession if id is taken.
func (m *Manager) Register(id string, sender Sender) error {
	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return fmt.Errorf("register %q: %w", id, ErrDuplicateSession)
	}
	m.sessions[id] = &entry{sender: sender, openedAt: time.Now()}
	m.mu.Unlock()

	m.total.Add(1)
	m.logger.Info("session registered", "session_id", id)
	m.publish(TopicOpened, id, "")
	return nil
}

// Unregister removes a session. Removing an absent id is a no-op.
func (m *Manager) Unregister(id string) {
	if m.remove(id, nil) {
		m.logger.Info("session unregistered", "session_id", id)
		m.publish(TopicClosed, id, ReasonDisconnect)
	}
}

// Detach removes id only while it is still bound to sender, so a transport
// tearing down late cannot evict a newer session registered under the same id.
func (m *Manager) Detach(id string, sender Sender) bool {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok || e.sender != sender {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	m.logger.Info("session unregistered", "session_id", id)
	m.publish(TopicClosed, id, ReasonDisconnect)
	return true
}

// DeliverTo sends payload to the named session. A send failure unregisters
// and closes the session before the error is returned.
func (m *Manager) DeliverTo(id string, payload []byte) error {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("deliver to %q: %w", id, ErrUnknownSession)
	}

	if err := e.sender.Send(payload); err != nil {
		if m.remove(id, e) {
			_ = e.sender.Close()
			m.logger.Warn("session dropped after send failure", "session_id", id, "error", err)
			m.publish(TopicClosed, id, ReasonSendFailure)
		}
		return fmt.Errorf("deliver to %q: %w", id, err)
	}
	return nil
}

// remove deletes id when it is still bound to want (any entry if want is nil).
func (m *Manager) remove(id string, want *entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok || (want != nil && e != want) {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Total returns the number of sessions ever registered.
func (m *Manager) Total() int64 { return m.total.Load() }

// IDs returns the live session ids in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// CloseAll closes and removes every live session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	for id, e := range sessions {
		if err := e.sender.Close(); err != nil {
			m.logger.Debug("session close failed", "session_id", id, "error", err)
		}
		m.publish(TopicClosed, id, ReasonShutdown)
	}
}

func (m *Manager) publish(topic, id, reason string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(topic, Event{SessionID: id, Reason: reason, At: time.Now().UTC()})
}
