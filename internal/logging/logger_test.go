package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m))
	return m
}

func TestLogger_KeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "debug", Component: "chat", JSONFormat: true}, &buf)

	l.WithTraceID("abc123").Info("turn processed", "session_id", "s-1", "final", true, "err", errors.New("boom"))

	m := decodeLine(t, &buf)
	assert.Equal(t, "turn processed", m["message"])
	assert.Equal(t, "info", m["level"])
	assert.Equal(t, "chat", m["component"])
	assert.Equal(t, "abc123", m["trace_id"])
	assert.Equal(t, "s-1", m["session_id"])
	assert.Equal(t, true, m["final"])
	assert.Equal(t, "boom", m["err"])
}

func TestLogger_Printf(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "info", JSONFormat: true}, &buf)

	l.Warn("retrying %s in %d seconds", "gemini")
	m := decodeLine(t, &buf)
	assert.Contains(t, m["message"], "retrying gemini")
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "warn", JSONFormat: true}, &buf)

	l.Info("hidden")
	l.Debug("hidden")
	assert.Zero(t, buf.Len())

	l.Error("shown")
	assert.NotZero(t, buf.Len())
}

func TestLogger_WithFieldsDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&Config{Level: "info", JSONFormat: true}, &buf)

	base.WithField("bot_id", "b-1").WithComponent("bot").Info("created")
	m := decodeLine(t, &buf)
	assert.Equal(t, "b-1", m["bot_id"])
	assert.Equal(t, "bot", m["component"])

	buf.Reset()
	base.Info("plain")
	m = decodeLine(t, &buf)
	assert.NotContains(t, m, "bot_id")
	assert.NotContains(t, m, "component")
}

func TestContextRoundTrip(t *testing.T) {
	l := NewWithWriter(&Config{Level: "info", JSONFormat: true}, &bytes.Buffer{})
	ctx := NewContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))

	ctx, traced := WithTraceContext(context.Background())
	assert.NotNil(t, traced)
	assert.Len(t, TraceIDFromContext(ctx), 32)
}

func TestGinMiddleware_PropagatesTraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	SetDefault(NewWithWriter(&Config{Level: "error", JSONFormat: true}, &bytes.Buffer{}))

	r := gin.New()
	r.Use(GinMiddleware())
	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = TraceIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceHeader, "trace-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "trace-1", seen)
	assert.Equal(t, "trace-1", w.Header().Get(TraceHeader))
}
