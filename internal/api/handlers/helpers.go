// Package handlers implements the gateway's HTTP and websocket endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/matiasleandrokruk/scalechat/internal/api/ctxkeys"
	"github.com/matiasleandrokruk/scalechat/internal/domain/chat"
)

// ChatService is the orchestrator surface the handlers depend on.
// *chat.Orchestrator satisfies it.
type ChatService interface {
	Process(ctx context.Context, conversationID, text string) chat.Result
	HealthCheck(ctx context.Context) bool
	Status() chat.Status
	Metrics() chat.MetricsSnapshot
}

const (
	headerContentType = "Content-Type"
	mimeJSON          = "application/json"

	defaultListLimit = 50
	maxListLimit     = 500

	maxBodyBytes = 1 << 20
)

var errEmptyMessage = errors.New("message must not be empty")

// chatReply is the response frame shared by POST /chat and the websocket.
type chatReply struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
	Timestamp      string `json:"timestamp"`
	OK             bool   `json:"ok"`
}

func newChatReply(conversationID string, res chat.Result) chatReply {
	return chatReply{
		Response:       res.Text,
		ConversationID: conversationID,
		Timestamp:      now(),
		OK:             res.OK,
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set(headerContentType, mimeJSON)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set(headerContentType, mimeJSON)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		http.Error(w, `{"error":"failed to encode error response"}`, http.StatusInternalServerError)
	}
}

// decodeJSON reads one JSON object from r into v, rejecting unknown fields.
func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(r, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// parseLimit reads ?limit=, clamped to [1, maxListLimit].
func parseLimit(r *http.Request) int {
	limit := defaultListLimit
	if lim, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && lim > 0 {
		if lim > maxListLimit {
			lim = maxListLimit
		}
		limit = lim
	}
	return limit
}

// requestLogger returns the request-scoped logger, tagged with the streaming
// client id when the request carries one.
func requestLogger(r *http.Request, fallback *slog.Logger) *slog.Logger {
	logger := ctxkeys.LoggerFrom(r.Context(), fallback)
	if id := ctxkeys.String(r.Context(), ctxkeys.ClientID); id != "" {
		logger = logger.With("client_id", id)
	}
	return logger
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
