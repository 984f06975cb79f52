package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"catwatch/internal/logger"
	"catwatch/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*HubService, context.CancelFunc) {
	t.Helper()
	hub := NewHubService(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func viewerServer(t *testing.T, hub *HubService) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn)
		defer hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *HubService, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.GetClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PublishReachesViewers(t *testing.T) {
	hub, _ := startHub(t)
	srv := viewerServer(t, hub)
	a, b := dial(t, srv), dial(t, srv)
	waitForClients(t, hub, 2)

	event := models.NewEvent(models.Track{ID: 4, Label: "cat", Confidence: 0.9}, time.Now())
	hub.Publish(event)

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "event", msg.Type)
		require.NotNil(t, msg.Event)
		assert.Equal(t, event.ID, msg.Event.ID)
		assert.Equal(t, 4, msg.Event.TrackID)
	}
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	hub, _ := startHub(t)
	srv := viewerServer(t, hub)
	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	conn.Close()

	waitForClients(t, hub, 0)
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	hub := NewHubService(logger.Discard())

	for i := 0; i < broadcastCap; i++ {
		assert.True(t, hub.Broadcast([]byte("x")))
	}
	assert.False(t, hub.Broadcast([]byte("x")))
}

func TestHub_StoppedHubClosesNewViewers(t *testing.T) {
	hub, cancel := startHub(t)
	cancel()
	require.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, time.Second, 10*time.Millisecond)

	srv := viewerServer(t, hub)
	conn := dial(t, srv)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
