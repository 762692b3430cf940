package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/matiasleandrokruk/scalechat/internal/api/ctxkeys"
	"github.com/matiasleandrokruk/scalechat/internal/domain/session"
)

const (
	wsReadLimit    = 64 << 10
	wsWriteTimeout = 10 * time.Second

	closeReasonDuplicate = "client id already connected"
)

// SessionRegistry is the session manager surface the websocket needs.
// *session.Manager satisfies it.
type SessionRegistry interface {
	Register(id string, sender session.Sender) error
	Detach(id string, sender session.Sender) bool
	DeliverTo(id string, payload []byte) error
}

// WSConfig tunes the per-connection inbound frame limiter.
type WSConfig struct {
	RateLimit float64 // frames per second
	RateBurst int
}

// WSHandler serves GET /ws/{client_id}.
type WSHandler struct {
	chat     ChatService
	sessions SessionRegistry
	cfg      WSConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(chatSvc ChatService, sessions SessionRegistry, cfg WSConfig, logger *slog.Logger) *WSHandler {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}
	return &WSHandler{
		chat:     chatSvc,
		sessions: sessions,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

type wsInbound struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type wsError struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// Serve upgrades the request and runs the session until the client leaves,
// a delivery fails or the server closes the session. Frames from one client
// are answered in order.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")
	if strings.TrimSpace(clientID) == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}

	r = r.WithContext(ctxkeys.WithValue(r.Context(), ctxkeys.ClientID, clientID))
	logger := requestLogger(r, h.logger)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	sender := newWSSender(conn)

	if err := h.sessions.Register(clientID, sender); err != nil {
		logger.Warn("websocket rejected", "error", err)
		_ = sender.closeWith(websocket.ClosePolicyViolation, closeReasonDuplicate)
		return
	}
	defer func() {
		h.sessions.Detach(clientID, sender)
		_ = sender.Close()
	}()
	logger.Info("client connected")

	conn.SetReadLimit(wsReadLimit)
	limiter := rate.NewLimiter(rate.Limit(h.cfg.RateLimit), h.cfg.RateBurst)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read failed", "error", err)
			} else {
				logger.Info("client disconnected")
			}
			return
		}

		payload := h.handleFrame(r, logger, limiter, clientID, data)
		if err := h.sessions.DeliverTo(clientID, payload); err != nil {
			logger.Warn("websocket delivery failed", "error", err)
			return
		}
	}
}

func (h *WSHandler) handleFrame(r *http.Request, logger *slog.Logger, limiter *rate.Limiter, clientID string, data []byte) []byte {
	if !limiter.Allow() {
		return mustMarshal(wsError{Error: "rate limit exceeded", Timestamp: now()})
	}

	var in wsInbound
	if err := json.Unmarshal(data, &in); err != nil {
		return mustMarshal(wsError{Error: "invalid JSON frame", Timestamp: now()})
	}
	if strings.TrimSpace(in.Message) == "" {
		return mustMarshal(wsError{Error: errEmptyMessage.Error(), Timestamp: now()})
	}
	if in.ConversationID == "" {
		in.ConversationID = clientID
	}

	res := h.chat.Process(context.WithoutCancel(r.Context()), in.ConversationID, in.Message)
	if !res.OK {
		logger.Warn("chat turn failed", "conversation_id", in.ConversationID, "error", res.Err)
	}
	return mustMarshal(newChatReply(in.ConversationID, res))
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// every frame type is a plain struct of strings and bools
		panic(err)
	}
	return b
}

// ─── session.Sender over a websocket ─────────────────────────────────────────

var errSenderClosed = errors.New("websocket sender closed")

// wsSender serializes writes on one connection; gorilla allows a single
// concurrent writer.
type wsSender struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  bool
	once    sync.Once
}

func newWSSender(conn *websocket.Conn) *wsSender {
	return &wsSender{conn: conn}
}

// Send writes payload as one text frame.
func (s *wsSender) Send(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return errSenderClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close sends a normal close frame and closes the connection. It is idempotent.
func (s *wsSender) Close() error {
	return s.closeWith(websocket.CloseNormalClosure, "")
}

func (s *wsSender) closeWith(code int, reason string) error {
	var err error
	s.once.Do(func() {
		s.writeMu.Lock()
		s.closed = true
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
