package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestRequestIDIsThreadedThroughContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := NewContext(context.Background(), New(&buf, "info"))
	ctx = WithRequestID(ctx, "req-1")
	ctx = With(ctx, "submission_id", "abc")

	assert.Equal(t, "req-1", RequestID(ctx))
	FromContext(ctx).Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "abc", line["submission_id"])
}

func TestContextsDoNotShareRequestIDs(t *testing.T) {
	base := context.Background()
	a := WithRequestID(base, "a")
	b := WithRequestID(base, "b")
	assert.Equal(t, "a", RequestID(a))
	assert.Equal(t, "b", RequestID(b))
	assert.Empty(t, RequestID(base))
	assert.Equal(t, slog.Default(), FromContext(base))
}
