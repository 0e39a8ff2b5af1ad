package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLogger_LevelsAndAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug")
	ctx := context.Background()

	log.Debug(ctx, "dial", "url", "ws://x")
	log.Info(ctx, "login", "user_id", "7")
	log.Warn(ctx, "close failed", "err", "eof")
	log.Error(ctx, "store", "key", "currentUser")

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG", "msg=dial", "url=ws://x",
		"level=INFO", "user_id=7",
		"level=WARN", `msg="close failed"`,
		"level=ERROR", "key=currentUser",
	} {
		assert.Contains(t, out, want)
	}
}

func TestSlogLogger_WithAddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info").With("component", "auth")
	log.Info(context.Background(), "hello", "k", "v")

	out := buf.String()
	require.True(t, strings.Contains(out, "component=auth"), out)
	require.True(t, strings.Contains(out, "k=v"), out)
}

func TestSlogLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")
	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewNop_DoesNotPanic(t *testing.T) {
	log := NewNop()
	log.With("a", 1).Error(context.TODO(), "discarded")
}
