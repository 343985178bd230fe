//go:build !rp2040

package logx

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	handler slog.Handler = newHandler(os.Stdout)
)

func newHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if os.Getenv("GO_ENV") == "production" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetOutput redirects host logging, mainly for tests and the collector tool.
func SetOutput(w io.Writer) {
	mu.Lock()
	handler = newHandler(w)
	mu.Unlock()
}

func toSlog(l Level) slog.Level {
	switch l {
	case LevelError:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	case LevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func emit(lv Level, tag, msg string, kv []any) {
	mu.RLock()
	h := handler
	mu.RUnlock()
	lg := slog.New(h).With("tag", tag)
	lg.Log(context.Background(), toSlog(lv), msg, kv...)
}
