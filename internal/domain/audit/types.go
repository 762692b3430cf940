package audit

import "time"

// Kind classifies a recorded event.
type Kind string

const (
	KindTurn          Kind = "turn"
	KindSessionOpened Kind = "session_opened"
	KindSessionClosed Kind = "session_closed"
)

// Event is one immutable row of the chat event log.
type Event struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"kind"`
	ConversationID string    `json:"conversation_id,omitempty"`
	SessionID      string    `json:"session_id,omitempty"`
	Provider       string    `json:"provider,omitempty"`
	Model          string    `json:"model,omitempty"`
	OK             bool      `json:"ok"`
	Degraded       bool      `json:"degraded"`
	LatencyMs      int64     `json:"latency_ms"`
	Detail         string    `json:"detail,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Summary aggregates the whole log.
type Summary struct {
	Turns          int64   `json:"turns"`
	FailedTurns    int64   `json:"failed_turns"`
	DegradedTurns  int64   `json:"degraded_turns"`
	SessionsOpened int64   `json:"sessions_opened"`
	SessionsClosed int64   `json:"sessions_closed"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
}
