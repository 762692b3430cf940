package handlers

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/matiasleandrokruk/scalechat/internal/domain/session"
)

func newWSServer(t *testing.T, fc *fakeChat, cfg WSConfig) (*httptest.Server, *session.Manager) {
	t.Helper()
	sessions := session.NewManager(session.WithLogger(quietLogger()))
	r := chi.NewRouter()
	r.Get("/ws/{client_id}", NewWSHandler(fc, sessions, cfg, quietLogger()).Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, sessions
}

func dialWS(t *testing.T, srv *httptest.Server, clientID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + clientID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame %q: %v", data, err)
	}
	return frame
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWSHandler_RoundTrip(t *testing.T) {
	t.Parallel()

	fc := &fakeChat{}
	srv, sessions := newWSServer(t, fc, WSConfig{})
	conn := dialWS(t, srv, "client-1")
	waitFor(t, func() bool { return sessions.Count() == 1 })

	if err := conn.WriteJSON(map[string]string{"message": "hello"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := readFrame(t, conn)
	if frame["response"] != "reply to hello" || frame["ok"] != true {
		t.Errorf("unexpected frame: %v", frame)
	}
	if frame["conversation_id"] != "client-1" {
		t.Errorf("expected conversation_id to default to client id, got %v", frame["conversation_id"])
	}

	if err := conn.WriteJSON(map[string]string{"message": "again", "conversation_id": "conv-X"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if frame := readFrame(t, conn); frame["conversation_id"] != "conv-X" {
		t.Errorf("expected explicit conversation_id, got %v", frame["conversation_id"])
	}

	got := fc.recorded()
	if len(got) != 2 || got[0] != "client-1|hello" || got[1] != "conv-X|again" {
		t.Errorf("unexpected orchestrator calls: %v", got)
	}
	errs, clientIDs := fc.contexts()
	for i := range errs {
		if errs[i] != nil {
			t.Errorf("turn %d context already done: %v", i, errs[i])
		}
		if clientIDs[i] != "client-1" {
			t.Errorf("turn %d context client id = %q; want client-1", i, clientIDs[i])
		}
	}
}

func TestWSHandler_InvalidFrames(t *testing.T) {
	t.Parallel()

	fc := &fakeChat{}
	srv, _ := newWSServer(t, fc, WSConfig{})
	conn := dialWS(t, srv, "client-1")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if frame := readFrame(t, conn); frame["error"] != "invalid JSON frame" {
		t.Errorf("unexpected frame: %v", frame)
	}

	if err := conn.WriteJSON(map[string]string{"message": ""}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if frame := readFrame(t, conn); frame["error"] != errEmptyMessage.Error() {
		t.Errorf("unexpected frame: %v", frame)
	}
	if len(fc.recorded()) != 0 {
		t.Error("orchestrator must not be called for invalid frames")
	}
}

func TestWSHandler_DuplicateClientRejected(t *testing.T) {
	t.Parallel()

	srv, sessions := newWSServer(t, &fakeChat{}, WSConfig{})
	first := dialWS(t, srv, "dup")
	waitFor(t, func() bool { return sessions.Count() == 1 })

	second := dialWS(t, srv, "dup")
	if err := second.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	_, _, err := second.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("expected close 1008, got %v", err)
	}

	// the original session keeps working
	if err := first.WriteJSON(map[string]string{"message": "still here"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if frame := readFrame(t, first); frame["response"] != "reply to still here" {
		t.Errorf("unexpected frame: %v", frame)
	}
	if sessions.Count() != 1 {
		t.Errorf("expected 1 live session, got %d", sessions.Count())
	}
}

func TestWSHandler_DisconnectUnregisters(t *testing.T) {
	t.Parallel()

	srv, sessions := newWSServer(t, &fakeChat{}, WSConfig{})
	conn := dialWS(t, srv, "leaver")
	waitFor(t, func() bool { return sessions.Count() == 1 })

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()
	waitFor(t, func() bool { return sessions.Count() == 0 })

	// the id is free again
	dialWS(t, srv, "leaver")
	waitFor(t, func() bool { return sessions.Count() == 1 })
}

func TestWSHandler_RateLimited(t *testing.T) {
	t.Parallel()

	fc := &fakeChat{}
	srv, _ := newWSServer(t, fc, WSConfig{RateLimit: 0.001, RateBurst: 1})
	conn := dialWS(t, srv, "chatty")

	for _, msg := range []string{"one", "two"} {
		if err := conn.WriteJSON(map[string]string{"message": msg}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if frame := readFrame(t, conn); frame["response"] != "reply to one" {
		t.Errorf("unexpected first frame: %v", frame)
	}
	if frame := readFrame(t, conn); frame["error"] != "rate limit exceeded" {
		t.Errorf("expected rate limit frame, got %v", frame)
	}
	if got := fc.recorded(); len(got) != 1 {
		t.Errorf("expected 1 processed message, got %v", got)
	}
}

func TestWSHandler_ServerCloseAll(t *testing.T) {
	t.Parallel()

	srv, sessions := newWSServer(t, &fakeChat{}, WSConfig{})
	conn := dialWS(t, srv, "c")
	waitFor(t, func() bool { return sessions.Count() == 1 })

	sessions.CloseAll()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseNormalClosure {
		t.Fatalf("expected normal close, got %v", err)
	}
}
