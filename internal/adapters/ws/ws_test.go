package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/GameFinder/internal/app"
	"github.com/dkeye/GameFinder/internal/core"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, time.Second)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	t.Run("it should allow up to the limit inside one window", func(t *testing.T) {
		assert.True(t, rl.Allow("a"))
		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
		assert.True(t, rl.Allow("b"))
	})

	t.Run("it should allow again once the window slides", func(t *testing.T) {
		now = now.Add(1500 * time.Millisecond)
		assert.True(t, rl.Allow("a"))
	})

	t.Run("it should forget closed connections", func(t *testing.T) {
		rl.Forget("a")
		rl.Forget("b")
		assert.Equal(t, 0, rl.tracked())
	})

	t.Run("it should be a no-op when disabled", func(t *testing.T) {
		off := NewRateLimiter(0, time.Second)
		for i := 0; i < 100; i++ {
			require.True(t, off.Allow("x"))
		}
	})
}

func TestConnection_TrySend(t *testing.T) {
	t.Parallel()

	c := newConnection(1, 1)
	require.NoError(t, c.TrySend(core.Frame("1")))
	require.ErrorIs(t, c.TrySend(core.Frame("2")), ErrBackpressure)

	c.Close()
	c.Close()
	require.ErrorIs(t, c.TrySend(core.Frame("3")), ErrConnectionClosed)
}

type harness struct {
	srv  *Server
	reg  *core.Registry
	sess *core.Session
	url  string
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{reg: core.NewRegistry()}
	h.sess = h.reg.Create()
	h.srv = NewServer(app.NewDispatcher(app.SimplePolicy{}), opts)

	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.srv.Serve(w, r, h.sess); err != nil && !errors.Is(err, ErrUpgrade) {
			http.Error(w, err.Error(), http.StatusNotFound)
		}
	}))
	t.Cleanup(hs.Close)
	h.url = "ws" + strings.TrimPrefix(hs.URL, "http")
	return h
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m map[string]any
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestServer_Frames(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{RateLimit: 3, RateInterval: time.Hour})
	conn := h.dial(t)
	assert.Equal(t, "SendInfo", readFrame(t, conn)["type"])

	t.Run("it should answer a bad frame with an error and stay open", func(t *testing.T) {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Bogus"}`)))
		m := readFrame(t, conn)
		assert.Equal(t, "Error", m["type"])
		assert.Equal(t, "unknown_event", m["error"])

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"SetBroke","user":"1","broke":true}`)))
		assert.Equal(t, "UpdateBroke", readFrame(t, conn)["type"])
	})

	t.Run("it should reject frames over the rate limit", func(t *testing.T) {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"SetBroke","user":"1","broke":false}`)))
		assert.Equal(t, "UpdateBroke", readFrame(t, conn)["type"])

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"SetBroke","user":"1","broke":true}`)))
		m := readFrame(t, conn)
		assert.Equal(t, "Error", m["type"])
		assert.Equal(t, "rate_limited", m["error"])
		assert.False(t, h.sess.IsUnavailable("1"))
	})
}

func TestServer_ReadLimit(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{ReadLimit: 64})
	conn := h.dial(t)
	readFrame(t, conn)

	big := `{"type":"ChangeMembers","steamids":["` + strings.Repeat("1", 200) + `"]}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(big)))

	require.Eventually(t, func() bool {
		_, err := h.reg.Lookup(h.sess.ID())
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, h.sess.Snapshot().Members)
}

func TestServer_Shutdown(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	a, b := h.dial(t), h.dial(t)
	readFrame(t, a)
	readFrame(t, b)
	require.Equal(t, 2, h.srv.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, h.srv.Shutdown(ctx))

	assert.Equal(t, 0, h.srv.Len())
	assert.Equal(t, 0, h.sess.PeerCount())
	_, err := h.reg.Lookup(h.sess.ID())
	require.ErrorIs(t, err, core.ErrSessionNotFound)

	t.Run("it should send a close frame to clients", func(t *testing.T) {
		require.NoError(t, a.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := a.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	})

	t.Run("it should refuse new connections", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(h.url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestServer_SlowReader(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{SendBuffer: 1, WriteWait: 200 * time.Millisecond})
	active, slow := h.dial(t), h.dial(t)
	readFrame(t, active)
	readFrame(t, slow)
	require.Equal(t, 2, h.sess.PeerCount())

	ids := make([]string, 4000)
	for i := range ids {
		ids[i] = fmt.Sprintf(`"76561198%09d"`, i)
	}
	frame := []byte(`{"type":"ChangeMembers","steamids":[` + strings.Join(ids, ",") + `]}`)

	// slow never reads again, so its socket fills and its one-frame buffer
	// overflows on a later broadcast.
	for i := 0; i < 500 && h.sess.PeerCount() > 1; i++ {
		require.NoError(t, active.WriteMessage(websocket.TextMessage, frame))
		require.Equal(t, "UpdatedUser", readFrame(t, active)["type"])
	}

	t.Run("it should kick and detach the peer that stopped reading", func(t *testing.T) {
		require.Eventually(t, func() bool {
			return h.sess.PeerCount() == 1 && h.srv.Len() == 1
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("it should keep serving the peer that still reads", func(t *testing.T) {
		_, err := h.reg.Lookup(h.sess.ID())
		require.NoError(t, err)

		require.NoError(t, active.WriteMessage(websocket.TextMessage, []byte(`{"type":"SetBroke","user":"1","broke":true}`)))
		assert.Equal(t, "UpdateBroke", readFrame(t, active)["type"])
	})
}
