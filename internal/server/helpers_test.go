package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/config"
	"github.com/Tyrowin/relaychat/internal/relay"
)

var fixedTime = time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC)

type answerFunc func(ctx context.Context, query string) string

func (f answerFunc) Answer(ctx context.Context, query string) string { return f(ctx, query) }

type testEnv struct {
	t      *testing.T
	ts     *httptest.Server
	server *Server
	router *relay.Router
	origin string
}

// newTestEnv starts a relay server on an httptest listener. mutate may adjust
// the server config before the server is built.
func newTestEnv(t *testing.T, mutate func(*config.ServerConfig)) *testEnv {
	t.Helper()

	ts := httptest.NewUnstartedServer(nil)
	origin := "http://" + ts.Listener.Addr().String()

	cfg := config.Default().Server
	cfg.AllowedOrigins = []string{origin}
	cfg.RateLimit.Burst = 100
	if mutate != nil {
		mutate(&cfg)
	}

	router := relay.NewRouter(relay.Config{
		Logger:      zerolog.Nop(),
		Clock:       func() time.Time { return fixedTime },
		SendTimeout: 50 * time.Millisecond,
		Responder: answerFunc(func(_ context.Context, query string) string {
			return "You asked: " + query
		}),
	})
	srv := New(Options{Config: cfg, Router: router, SendBuffer: 32, Logger: zerolog.Nop()})

	ts.Config.Handler = srv.Routes()
	ts.Start()

	env := &testEnv{t: t, ts: ts, server: srv, router: router, origin: origin}
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(2 * time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = router.Shutdown(ctx)
	})
	return env
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws"
}

// dial opens a WebSocket connection with the allowed origin.
func (e *testEnv) dial() *websocket.Conn {
	e.t.Helper()
	header := http.Header{}
	header.Set("Origin", e.origin)

	conn, resp, err := websocket.DefaultDialer.Dial(e.wsURL(), header)
	require.NoError(e.t, err)
	_ = resp.Body.Close()
	e.t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// join dials and registers username, waiting until the router has it.
func (e *testEnv) join(username string) *websocket.Conn {
	e.t.Helper()
	conn := e.dial()
	send(e.t, conn, username)
	require.Eventually(e.t, func() bool {
		_, ok := e.router.Registry().Lookup(username)
		return ok
	}, 2*time.Second, 5*time.Millisecond, "registration of %s", username)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(text)))
}

func readLine(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)
	return string(payload)
}

// expectSilence fails if conn receives a frame within a short window.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, payload, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame %q", string(payload))
}
