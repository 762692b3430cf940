// Package ctxkeys holds the request-scoped context keys shared by the api
// middleware and handlers. It is a leaf package to avoid import cycles.
package ctxkeys

import (
	"context"
	"log/slog"
)

// Key is the named type for all API context keys.
type Key string

const (
	// Logger is the key for the request-scoped *slog.Logger injected by the
	// access-log middleware.
	Logger Key = "logger"

	// ClientID is the key for the streaming client id of a websocket request.
	ClientID Key = "client_id"
)

// WithValue adds a string value under key.
func WithValue(ctx context.Context, key Key, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// String returns the string stored under key, or "".
func String(ctx context.Context, key Key) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// WithLogger stores l as the request logger.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, Logger, l)
}

// LoggerFrom returns the request logger, falling back to fallback and then
// to slog.Default.
func LoggerFrom(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(Logger).(*slog.Logger); ok && l != nil {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}
