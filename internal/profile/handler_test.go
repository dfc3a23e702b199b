package profile

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapgram/internal/auth"
)

func TestHandler_Routes(t *testing.T) {
	f := newFixture(t)
	mux := http.NewServeMux()
	NewHandler(f.service).Mount(mux, auth.NewGate(f.accounts))

	do := func(method, path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodGet, "/api/users/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "alice@example.com")

	rec = do(http.MethodGet, "/api/users/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(http.MethodPost, "/api/users/alice/follow", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(http.MethodPost, "/api/users/alice/follow", f.alice.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodPost, "/api/users/alice/follow", f.bob.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Message     string `json:"message"`
		IsFollowing bool   `json:"isFollowing"`
		User        View   `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.IsFollowing)
	assert.Equal(t, 1, body.User.FollowersCount)

	rec = do(http.MethodGet, "/api/users/alice", f.bob.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"isFollowing":true`)
}
