// Package conversation holds per-conversation message history in memory.
//
// Design:
//   - One Store per process, passed explicitly to its users (no globals).
//   - Messages are append-only and kept in arrival order.
//   - History is unbounded unless a per-conversation cap is configured, in
//     which case the oldest messages are dropped first.
//   - Store methods never block on I/O; callers that need a multi-step
//     read-modify-write sequence serialize it with KeyedMutex.
package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matiasleandrokruk/scalechat/internal/infra/llm"
)

// Message is an immutable record of one conversation turn.
type Message struct {
	ID        string
	Role      llm.Role
	Content   string
	Timestamp time.Time
}

// NewMessage stamps a message with a fresh id and the current time.
func NewMessage(role llm.Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Store maps conversation ids to their ordered message history.
type Store struct {
	mu            sync.RWMutex
	conversations map[string][]Message
	maxMessages   int
}

// Option customizes a Store.
type Option func(*Store)

// WithMaxMessages caps each conversation at n messages (0 = unbounded).
func WithMaxMessages(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxMessages = n
		}
	}
}

// NewStore returns an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{conversations: make(map[string][]Message)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AppendMessage adds msg to the end of the conversation, creating it if new.
func (s *Store) AppendMessage(conversationID string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(s.conversations[conversationID], msg)
	if s.maxMessages > 0 && len(msgs) > s.maxMessages {
		// copy so the dropped prefix can be collected
		msgs = append([]Message(nil), msgs[len(msgs)-s.maxMessages:]...)
	}
	s.conversations[conversationID] = msgs
}

// GetContext returns up to maxMessages of the most recent messages, oldest
// first. maxMessages <= 0 returns the whole history. An unknown id yields an
// empty, non-nil slice.
func (s *Store) GetContext(conversationID string, maxMessages int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.conversations[conversationID]
	if maxMessages > 0 && len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Len returns the number of messages stored for conversationID.
func (s *Store) Len(conversationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations[conversationID])
}

// Exists reports whether conversationID has been referenced before.
func (s *Store) Exists(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.conversations[conversationID]
	return ok
}

// Count returns the number of known conversations.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// Clear drops every conversation.
func (s *Store) Clear() {
	s.mu.Lock()
	s.conversations = make(map[string][]Message)
	s.mu.Unlock()
}
