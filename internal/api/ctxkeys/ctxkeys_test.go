package ctxkeys

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func TestWithValue_SetsAndGetsTypedKey(t *testing.T) {
	t.Parallel()

	ctx := WithValue(context.Background(), ClientID, "c-999")
	if got := String(ctx, ClientID); got != "c-999" {
		t.Fatalf("expected c-999, got %q", got)
	}
	if got := ctx.Value("client_id"); got != nil {
		t.Fatalf("expected untyped key lookup to miss, got %v", got)
	}
}

func TestString_Missing(t *testing.T) {
	t.Parallel()

	if got := String(context.Background(), ClientID); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestLoggerFrom(t *testing.T) {
	t.Parallel()

	fallback := slog.New(slog.NewTextHandler(io.Discard, nil))
	scoped := fallback.With("request_id", "r1")

	if got := LoggerFrom(context.Background(), fallback); got != fallback {
		t.Errorf("expected fallback logger without a scoped one")
	}
	if got := LoggerFrom(WithLogger(context.Background(), scoped), fallback); got != scoped {
		t.Errorf("expected scoped logger from context")
	}
	if got := LoggerFrom(context.Background(), nil); got != slog.Default() {
		t.Errorf("expected slog.Default as last resort")
	}
}
