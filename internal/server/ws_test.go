package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aidin1998/dexroute/internal/models"
)

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/orders/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestWebsocketSubscribeAndReceive(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Router())
	defer ts.Close()

	conn := dialWS(t, ts)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"order_id": "ord-ws-1"}))

	var ack map[string]string
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "ord-ws-1", ack["order_id"])
	assert.Equal(t, "connected", ack["status"])

	// subscribing records the liveness marker
	require.Eventually(t, func() bool {
		ok, err := env.active.Active(context.Background(), "ord-ws-1")
		return err == nil && ok
	}, time.Second, 10*time.Millisecond)

	env.hub.Send("ord-ws-1", models.StatusEvent{
		OrderID:   "ord-ws-1",
		Status:    models.StatusRouting,
		Timestamp: time.Now().UTC(),
	})

	var event models.StatusEvent
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, models.StatusRouting, event.Status)
}

func TestWebsocketRequiresOrderID(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Router())
	defer ts.Close()

	conn := dialWS(t, ts)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{}))

	var reply map[string]string
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.NotEmpty(t, reply["error"])
}

func TestWebsocketTeardownReleasesRegistration(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Router())
	defer ts.Close()

	conn := dialWS(t, ts)
	require.NoError(t, conn.WriteJSON(map[string]string{"order_id": "ord-ws-2"}))

	var ack map[string]string
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&ack))

	conn.Close()

	// once the handler unwinds, markers are cleared and sends drop
	require.Eventually(t, func() bool {
		ok, err := env.active.Active(context.Background(), "ord-ws-2")
		return err == nil && !ok
	}, 2*time.Second, 10*time.Millisecond)

	env.hub.Send("ord-ws-2", models.StatusEvent{
		OrderID: "ord-ws-2",
		Status:  models.StatusConfirmed,
	})
}
