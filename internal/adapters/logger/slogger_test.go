package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{" Warn ", LevelWarn},
		{"error", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestSlogLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelWarn, "text", &buf)
	ctx := context.Background()

	l.Debug(ctx, "debug message")
	l.Info(ctx, "info message")
	l.Warn(ctx, "warn message", map[string]interface{}{"attempt": 2})
	l.Error(ctx, errors.New("boom"), "error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "attempt=2")
	assert.Contains(t, out, "error message")
	assert.Contains(t, out, "error=boom")
}

func TestSlogLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelDebug, "json", &buf)

	l.Info(context.Background(), "cache hit", map[string]interface{}{"key": "1m|10", "bars": 150})

	line := strings.TrimSpace(buf.String())
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &payload))
	assert.Equal(t, "cache hit", payload["msg"])
	assert.Equal(t, "INFO", payload["level"])
	assert.Equal(t, "1m|10", payload["key"])
	assert.Equal(t, float64(150), payload["bars"])
}
