// Package audit keeps an append-only SQLite log of chat turns and session
// lifecycle changes, fed from the in-process event bus.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/matiasleandrokruk/scalechat/internal/domain/chat"
	"github.com/matiasleandrokruk/scalechat/internal/domain/session"
	"github.com/matiasleandrokruk/scalechat/internal/infra/eventbus"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Service reads and appends chat events. There is no update or delete path.
type Service struct {
	db *sql.DB
}

// NewService creates a Service over a migrated database.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Log appends evt, assigning an ID and timestamp when they are empty.
func (s *Service) Log(ctx context.Context, evt *Event) error {
	if evt.ID == "" {
		evt.ID = newID()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_event
			(id, kind, conversation_id, session_id, provider, model, ok, degraded, latency_ms, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.ID, string(evt.Kind), evt.ConversationID, evt.SessionID, evt.Provider, evt.Model,
		boolToInt(evt.OK), boolToInt(evt.Degraded), evt.LatencyMs, evt.Detail,
		evt.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("audit: insert %s event: %w", evt.Kind, err)
	}
	return nil
}

// ListRecent returns up to limit events, newest first.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, selectEvents+`
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("audit: list recent: %w", err)
	}
	return scanEvents(rows)
}

// ListByConversation returns the turns of one conversation, newest first.
func (s *Service) ListByConversation(ctx context.Context, conversationID string, limit int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, selectEvents+`
		WHERE conversation_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, conversationID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("audit: list conversation %q: %w", conversationID, err)
	}
	return scanEvents(rows)
}

// Summary aggregates counters across the whole log.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	var (
		sum Summary
		avg sql.NullFloat64
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(kind = 'turn'), 0),
			COALESCE(SUM(kind = 'turn' AND ok = 0), 0),
			COALESCE(SUM(kind = 'turn' AND degraded = 1), 0),
			COALESCE(SUM(kind = 'session_opened'), 0),
			COALESCE(SUM(kind = 'session_closed'), 0),
			AVG(CASE WHEN kind = 'turn' AND ok = 1 THEN latency_ms END)
		FROM chat_event`)
	if err := row.Scan(&sum.Turns, &sum.FailedTurns, &sum.DegradedTurns,
		&sum.SessionsOpened, &sum.SessionsClosed, &avg); err != nil {
		return Summary{}, fmt.Errorf("audit: summary: %w", err)
	}
	sum.AvgLatencyMs = avg.Float64
	return sum, nil
}

const selectEvents = `
	SELECT id, kind, conversation_id, session_id, provider, model, ok, degraded, latency_ms, detail, created_at
	FROM chat_event`

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		var (
			e         Event
			kind      string
			ok, degr  int
			createdAt string
		)
		if err := rows.Scan(&e.ID, &kind, &e.ConversationID, &e.SessionID, &e.Provider, &e.Model,
			&ok, &degr, &e.LatencyMs, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Kind = Kind(kind)
		e.OK, e.Degraded = ok == 1, degr == 1
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("audit: parse created_at %q: %w", createdAt, err)
		}
		e.CreatedAt = ts
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}
	return events, nil
}

// ─── bus consumer ────────────────────────────────────────────────────────────

// Recorder copies bus events into the log.
type Recorder struct {
	svc    *Service
	logger *slog.Logger
	turns  <-chan eventbus.Event
	opened <-chan eventbus.Event
	closed <-chan eventbus.Event
}

// NewRecorder subscribes to the chat and session topics immediately so no
// event published after it returns is missed. Call Run to consume.
func NewRecorder(svc *Service, bus eventbus.EventBus, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		svc:    svc,
		logger: logger,
		turns:  bus.Subscribe(chat.TopicTurn),
		opened: bus.Subscribe(session.TopicOpened),
		closed: bus.Subscribe(session.TopicClosed),
	}
}

// Run records events until ctx ends or every subscription is closed.
func (r *Recorder) Run(ctx context.Context) error {
	turns, opened, closed := r.turns, r.opened, r.closed
	for turns != nil || opened != nil || closed != nil {
		var (
			evt eventbus.Event
			ok  bool
		)
		select {
		case <-ctx.Done():
			return nil
		case evt, ok = <-turns:
			if !ok {
				turns = nil
				continue
			}
		case evt, ok = <-opened:
			if !ok {
				opened = nil
				continue
			}
		case evt, ok = <-closed:
			if !ok {
				closed = nil
				continue
			}
		}

		rec, convErr := toEvent(evt)
		if convErr != nil {
			r.logger.Warn("audit: skipping event", "topic", evt.Topic, "error", convErr)
			continue
		}
		// Writes outlive request contexts; shutdown is signalled by ctx above.
		if err := r.svc.Log(context.WithoutCancel(ctx), rec); err != nil {
			r.logger.Error("audit: record event failed", "topic", evt.Topic, "error", err)
		}
	}
	return nil
}

var errUnexpectedPayload = errors.New("unexpected payload type")

func toEvent(evt eventbus.Event) (*Event, error) {
	switch p := evt.Payload.(type) {
	case chat.TurnEvent:
		return &Event{
			Kind:           KindTurn,
			ConversationID: p.ConversationID,
			Provider:       string(p.Provider),
			Model:          p.Model,
			OK:             p.OK,
			Degraded:       p.Degraded,
			LatencyMs:      p.Latency.Milliseconds(),
			Detail:         p.Error,
			CreatedAt:      p.At,
		}, nil
	case session.Event:
		kind := KindSessionOpened
		if evt.Topic == session.TopicClosed {
			kind = KindSessionClosed
		}
		return &Event{Kind: kind, SessionID: p.SessionID, Detail: p.Reason, CreatedAt: p.At}, nil
	default:
		return nil, fmt.Errorf("%w %T", errUnexpectedPayload, evt.Payload)
	}
}

func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
