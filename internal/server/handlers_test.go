package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/config"
	"github.com/Tyrowin/relaychat/internal/relay"
)

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := get(t, env.ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Relaychat server is running!", body)
}

func TestTestPageHandler(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := get(t, env.ts.URL+"/test")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "Relaychat WebSocket Test")
	assert.Contains(t, body, "ws.send(username)")
}

func TestUsersHandler(t *testing.T) {
	env := newTestEnv(t, nil)

	_, body := get(t, env.ts.URL+"/users")
	assert.JSONEq(t, `{"users":[],"count":0}`, body)

	env.join("bob")
	env.join("alice")

	resp, body := get(t, env.ts.URL+"/users")
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var users usersResponse
	require.NoError(t, json.Unmarshal([]byte(body), &users))
	assert.Equal(t, []string{"alice", "bob"}, users.Users)
	assert.Equal(t, 2, users.Count)
}

func TestWebSocketRejectsNonGet(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Post(env.ts.URL+"/ws", "text/plain", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := get(t, env.ts.URL+"/ws")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	router := relay.NewRouter(relay.Config{Logger: zerolog.Nop()})
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("relay_active_sessions 0\n"))
	})

	withMetrics := New(Options{Config: config.Default().Server, Router: router, Metrics: metrics, Logger: zerolog.Nop()})
	defer func() { _ = withMetrics.Shutdown(time.Second) }()
	withoutMetrics := New(Options{Config: config.Default().Server, Router: router, Logger: zerolog.Nop()})
	defer func() { _ = withoutMetrics.Shutdown(time.Second) }()

	rec := httptest.NewRecorder()
	withMetrics.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "relay_active_sessions 0\n", rec.Body.String())

	rec = httptest.NewRecorder()
	withoutMetrics.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSanitizeConfig(t *testing.T) {
	cfg := sanitizeConfig(config.ServerConfig{})
	defaults := config.Default().Server

	assert.Equal(t, defaults.Port, cfg.Port)
	assert.Equal(t, defaults.MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, defaults.RateLimit, cfg.RateLimit)
}
