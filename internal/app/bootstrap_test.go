package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildMemoryRuntime(t *testing.T) *Runtime {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATA_STORE", "memory")
	t.Setenv("JWT_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
	t.Setenv("BCRYPT_COST", "4")
	t.Setenv("ALLOWED_ORIGINS", "https://snapgram.example")
	t.Setenv("REDIS_URL", "")
	t.Setenv("CLOUDINARY_URL", "")
	t.Setenv("SENTRY_DSN", "")

	runtime, err := Build(Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = runtime.Close() })
	return runtime
}

func TestBuild_MemoryStoreServesAPI(t *testing.T) {
	runtime := buildMemoryRuntime(t)

	rec := httptest.NewRecorder()
	runtime.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	body, err := json.Marshal(map[string]string{
		"email": "alice@example.com", "fullName": "Alice Liddell", "username": "alice",
		"password": "Secret123", "confirmPassword": "Secret123",
	})
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	runtime.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var session struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	require.NotEmpty(t, session.Token)

	req := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rec = httptest.NewRecorder()
	runtime.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuild_UploadsDisabledWithoutCloudinary(t *testing.T) {
	runtime := buildMemoryRuntime(t)

	rec := httptest.NewRecorder()
	runtime.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/upload", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBuild_CORSPreflight(t *testing.T) {
	runtime := buildMemoryRuntime(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/posts", nil)
	req.Header.Set("Origin", "https://snapgram.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	runtime.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://snapgram.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestBuild_RejectsBadConfig(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATA_STORE", "memory")
	t.Setenv("JWT_SECRET", "same")
	t.Setenv("JWT_REFRESH_SECRET", "same")

	_, err := Build(Options{})
	assert.ErrorContains(t, err, "load config")
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://snapgram.example/"})

	req := httptest.NewRequest(http.MethodGet, "/api/notifications/stream", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://snapgram.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}
