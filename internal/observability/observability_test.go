package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapgram/internal/httpmw"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		lines = append(lines, entry)
	}
	return lines
}

func TestLogger_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf).With(map[string]any{"service": "snapgram"})

	logger.Warn("login_failed", map[string]any{"error": errors.New("bad password"), "attempt": 2})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "login_failed", lines[0]["message"])
	assert.Equal(t, "bad password", lines[0]["error"])
	assert.Equal(t, "snapgram", lines[0]["service"])
	assert.NotEmpty(t, lines[0]["timestamp"])
}

func TestRequestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	handler := httpmw.RequestID(RequestLoggingMiddleware(NewLoggerTo(&buf), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.Header.Set(httpmw.RequestIDHeader, "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "http_request", lines[0]["message"])
	assert.Equal(t, float64(http.StatusTeapot), lines[0]["status"])
	assert.Equal(t, "req-42", lines[0]["request_id"])
	assert.Equal(t, "/api/posts", lines[0]["path"])
}

func TestRecoverMiddleware(t *testing.T) {
	var buf bytes.Buffer
	handler := RecoverMiddleware(NewLoggerTo(&buf), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "ServiceError")
	assert.Contains(t, buf.String(), "panic_recovered")
}

func TestScrubEvent(t *testing.T) {
	event := &sentry.Event{Request: &sentry.Request{
		Headers:     map[string]string{"authorization": "Bearer secret", "Accept": "application/json"},
		Data:        `{"password":"Secret123"}`,
		QueryString: "access_token=abc",
	}}

	scrubbed := scrubEvent(event, nil)

	assert.Equal(t, "[redacted]", scrubbed.Request.Headers["authorization"])
	assert.Equal(t, "application/json", scrubbed.Request.Headers["Accept"])
	assert.Empty(t, scrubbed.Request.Data)
	assert.Equal(t, "[redacted]", scrubbed.Request.QueryString)
	assert.Nil(t, scrubEvent(nil, nil))
}

func TestInitSentry_EmptyDSNIsNoop(t *testing.T) {
	assert.NoError(t, InitSentry("", "test"))
}
