package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ChatHandler serves the request/response chat endpoint.
type ChatHandler struct {
	chat   ChatService
	logger *slog.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(chatSvc ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chat: chatSvc, logger: logger}
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Chat handles POST /chat. A missing conversation_id starts a new
// conversation under a generated id, returned in the reply. Generation
// failures are answered with 200 and ok=false: the apology is the reply.
// The turn runs to completion even if the client goes away; only the
// provider timeout bounds it.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, errEmptyMessage.Error())
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	res := h.chat.Process(context.WithoutCancel(r.Context()), req.ConversationID, req.Message)
	if !res.OK {
		requestLogger(r, h.logger).Warn("chat turn failed",
			"conversation_id", req.ConversationID, "error", res.Err)
	}
	writeJSON(w, http.StatusOK, newChatReply(req.ConversationID, res))
}
