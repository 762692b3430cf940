package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Host != "0.0.0.0" {
		t.Fatalf("Host = %q; want %q", cfg.Host, "0.0.0.0")
	}
	if cfg.Port != 8000 {
		t.Fatalf("Port = %d; want %d", cfg.Port, 8000)
	}
	if cfg.ReadTimeout != 15*time.Second {
		t.Fatalf("ReadTimeout = %v; want %v", cfg.ReadTimeout, 15*time.Second)
	}
	if cfg.WriteTimeout != 90*time.Second {
		t.Fatalf("WriteTimeout = %v; want %v", cfg.WriteTimeout, 90*time.Second)
	}
	if cfg.IdleTimeout != 60*time.Second {
		t.Fatalf("IdleTimeout = %v; want %v", cfg.IdleTimeout, 60*time.Second)
	}
}

func TestNewServer_ConfiguresAddressAndHandler(t *testing.T) {
	cfg := Config{Host: "127.0.0.1", Port: 18080, ReadTimeout: time.Second, WriteTimeout: 2 * time.Second, IdleTimeout: 3 * time.Second}
	s := NewServer(http.NotFoundHandler(), cfg, quietLogger())

	if s == nil {
		t.Fatal("NewServer() returned nil")
	}
	if s.Addr() != "127.0.0.1:18080" {
		t.Fatalf("Addr = %q; want %q", s.Addr(), "127.0.0.1:18080")
	}
	if s.http.Handler == nil {
		t.Fatal("Handler should not be nil")
	}
	if s.http.WriteTimeout != 2*time.Second {
		t.Fatalf("WriteTimeout = %v; want %v", s.http.WriteTimeout, 2*time.Second)
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	s := NewServer(handler, DefaultConfig(), quietLogger())

	var order []string
	s.OnShutdown("first", func(context.Context) error { order = append(order, "first"); return nil })
	s.OnShutdown("second", func(context.Context) error { order = append(order, "second"); return nil })

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want 200", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serve() error = %v; want nil after graceful shutdown", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("hook order = %v; want [first second]", order)
	}
}

func TestServer_ShutdownJoinsHookErrors(t *testing.T) {
	s := NewServer(http.NotFoundHandler(), DefaultConfig(), quietLogger())
	boom := errors.New("boom")
	ran := false
	s.OnShutdown("failing", func(context.Context) error { return boom })
	s.OnShutdown("after", func(context.Context) error { ran = true; return nil })

	err := s.Shutdown(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Shutdown() error = %v; want wrapped boom", err)
	}
	if !ran {
		t.Fatal("hooks after a failing one must still run")
	}
}

func TestServer_StartInvalidAddress(t *testing.T) {
	s := NewServer(http.NotFoundHandler(), Config{Host: "256.0.0.1", Port: 1}, quietLogger())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start() on an invalid address = nil; want error")
	}
}
