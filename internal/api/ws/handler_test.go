package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelvision/console/backend/internal/domain/channel"
	"github.com/sentinelvision/console/backend/internal/domain/health"
	"github.com/sentinelvision/console/backend/internal/domain/retry"
)

// dialStream builds a handler around a fast-ticking scheduler, serves it
// on a test server, and returns a connected client.
func dialStream(t *testing.T) (*retry.Scheduler, *websocket.Conn) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	scheduler := retry.NewScheduler(retry.Config{TickInterval: 20 * time.Millisecond}, nil)
	t.Cleanup(scheduler.Close)

	group := channel.NewGroup()
	group.Add(channel.NewMachine("events", channel.Config{}, func() {}, nil))

	workers := health.NewWorkers(nil)
	aggregator := health.NewAggregator(health.AggregatorConfig{}, nil)
	t.Cleanup(aggregator.Close)

	handler := NewHandler(scheduler, group, workers, aggregator, nil)

	router := gin.New()
	router.GET("/stream", handler.HandleConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return scheduler, conn
}

// readFrame reads frames until one of the wanted type arrives.
func readFrame(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		if frame["type"] == wantType {
			return frame
		}
	}
}

// readRetries reads retry frames until one carries the wanted count.
func readRetries(t *testing.T, conn *websocket.Conn, wantCount int) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		frame := readFrame(t, conn, "retries")
		if count, ok := frame["count"].(float64); ok && int(count) == wantCount {
			return frame
		}
	}
}

func TestHandlerWelcome(t *testing.T) {
	_, conn := dialStream(t)

	frame := readFrame(t, conn, "system")
	assert.Contains(t, frame["message"], "Sentinel")

	frame = readRetries(t, conn, 0)
	assert.NotNil(t, frame["timestamp"])
}

func TestHandlerPushesRetryChanges(t *testing.T) {
	scheduler, conn := dialStream(t)
	readFrame(t, conn, "system")

	rid, _ := scheduler.Register("events poll", 3)

	frame := readRetries(t, conn, 1)
	entries := frame["retries"].([]any)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]any)
	assert.Equal(t, rid.String(), entry["id"])
	assert.Equal(t, "events poll", entry["description"])

	scheduler.Cancel(rid)
	readRetries(t, conn, 0)
}

func TestHandlerStatusRequest(t *testing.T) {
	_, conn := dialStream(t)
	readFrame(t, conn, "system")

	require.NoError(t, conn.WriteJSON(Message{Type: "status"}))

	frame := readFrame(t, conn, "status")
	assert.Equal(t, "disconnected", frame["connection"])
	channels := frame["channels"].([]any)
	require.Len(t, channels, 1)
	assert.NotNil(t, frame["workers"])
	assert.NotNil(t, frame["degradation"])
}

func TestHandlerPing(t *testing.T) {
	_, conn := dialStream(t)
	readFrame(t, conn, "system")

	require.NoError(t, conn.WriteJSON(Message{Type: "ping"}))
	readFrame(t, conn, "pong")
}

func TestHandlerUnknownType(t *testing.T) {
	_, conn := dialStream(t)
	readFrame(t, conn, "system")

	require.NoError(t, conn.WriteJSON(Message{Type: "bogus"}))

	frame := readFrame(t, conn, "error")
	assert.Equal(t, "unknown message type", frame["message"])
}
