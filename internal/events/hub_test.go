package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/quarry/internal/queue"
)

func startHubServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		require.NoError(t, err)
		h.Add(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubEmitReachesClient(t *testing.T) {
	h := New(nil)
	srv := startHubServer(t, h)
	conn := dial(t, srv)

	// wait for the server side to register
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	h.Emit(queue.Event{Type: queue.EventPut, JobID: "j1", Queue: "orders", AtMs: 1000})

	var ev queue.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, queue.EventPut, ev.Type)
	require.Equal(t, "j1", ev.JobID)
	require.Equal(t, "orders", ev.Queue)
}

func TestHubRemovesDisconnectedClient(t *testing.T) {
	h := New(nil)
	srv := startHubServer(t, h)
	conn := dial(t, srv)

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubEmitDoesNotBlockOnStalledClient(t *testing.T) {
	h := New(nil)
	srv := startHubServer(t, h)
	dial(t, srv) // connect but never read

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10*sendBuffer; i++ {
			h.Emit(queue.Event{Type: queue.EventPut, JobID: "j1", Queue: "orders", AtMs: int64(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a client that stopped reading")
	}
}

func TestHubEmitWithNoClients(t *testing.T) {
	h := New(nil)
	// must not panic or block
	h.Emit(queue.Event{Type: queue.EventCompleted, JobID: "j2", AtMs: 2000})
	require.Zero(t, h.ClientCount())
}
