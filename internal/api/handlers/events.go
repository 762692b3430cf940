package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/matiasleandrokruk/scalechat/internal/domain/audit"
)

// EventLister reads the audit log. *audit.Service satisfies it.
type EventLister interface {
	ListRecent(ctx context.Context, limit int) ([]*audit.Event, error)
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]*audit.Event, error)
	Summary(ctx context.Context) (audit.Summary, error)
}

// EventsHandler exposes the audit log.
type EventsHandler struct {
	events EventLister
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(events EventLister, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{events: events, logger: logger}
}

// List handles GET /api/v1/events?limit=&conversation_id=.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)

	var (
		events []*audit.Event
		err    error
	)
	if conv := r.URL.Query().Get("conversation_id"); conv != "" {
		events, err = h.events.ListByConversation(r.Context(), conv, limit)
	} else {
		events, err = h.events.ListRecent(r.Context(), limit)
	}
	if err != nil {
		requestLogger(r, h.logger).Error("list events failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": events, "meta": map[string]int{"limit": limit}})
}

// Summary handles GET /api/v1/events/summary.
func (h *EventsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.events.Summary(r.Context())
	if err != nil {
		requestLogger(r, h.logger).Error("events summary failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to summarize events")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
