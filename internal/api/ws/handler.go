package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sentinelvision/console/backend/internal/domain/channel"
	"github.com/sentinelvision/console/backend/internal/domain/health"
	"github.com/sentinelvision/console/backend/internal/domain/retry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // UI origin varies per deployment
	},
}

// Message is one inbound frame from a console UI client.
type Message struct {
	Type string `json:"type"`
}

// Handler manages WebSocket connections from console UI clients
type Handler struct {
	scheduler  *retry.Scheduler
	channels   *channel.Group
	workers    *health.Workers
	aggregator *health.Aggregator
	log        *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(scheduler *retry.Scheduler, channels *channel.Group, workers *health.Workers, aggregator *health.Aggregator, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		scheduler:  scheduler,
		channels:   channels,
		workers:    workers,
		aggregator: aggregator,
		log:        log,
	}
}

// conn serializes frame writes. Retry pushes arrive on the scheduler's
// tick goroutine while replies go out from the read loop.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) send(data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(data)
}

// HandleConnection handles WebSocket upgrade and messages. Every client
// receives a retry registry snapshot after each change and once per
// countdown tick while entries are pending.
func (h *Handler) HandleConnection(c *gin.Context) {
	raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer raw.Close()

	wc := &conn{ws: raw}

	h.send(wc, gin.H{
		"type":    "system",
		"message": "Connected to Sentinel console",
	})
	h.send(wc, retriesFrame(h.scheduler.Snapshot()))

	unsubscribe := h.scheduler.Subscribe(func(entries []retry.Entry) {
		h.send(wc, retriesFrame(entries))
	})
	defer unsubscribe()

	// Listen for messages
	for {
		var msg Message
		if err := raw.ReadJSON(&msg); err != nil {
			h.log.Debug("websocket closed", zap.Error(err))
			break
		}

		switch msg.Type {
		case "status":
			h.sendStatus(wc)
		case "ping":
			h.send(wc, gin.H{"type": "pong"})
		default:
			h.sendError(wc, "unknown message type")
		}
	}
}

// sendStatus answers an explicit status request with a one-shot summary
// of connection, worker, and degradation state.
func (h *Handler) sendStatus(wc *conn) {
	h.send(wc, gin.H{
		"type":        "status",
		"connection":  h.channels.CombinedState(),
		"channels":    h.channels.Snapshots(),
		"workers":     h.workers.Summary(),
		"degradation": h.aggregator.State(),
		"timestamp":   time.Now().Unix(),
	})
}

func retriesFrame(entries []retry.Entry) gin.H {
	return gin.H{
		"type":      "retries",
		"retries":   entries,
		"count":     len(entries),
		"timestamp": time.Now().Unix(),
	}
}

func (h *Handler) send(wc *conn, data any) error {
	return wc.send(data)
}

func (h *Handler) sendError(wc *conn, msg string) error {
	return h.send(wc, gin.H{
		"type":      "error",
		"message":   msg,
		"timestamp": time.Now().Unix(),
	})
}
