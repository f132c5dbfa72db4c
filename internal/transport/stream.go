package transport

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sentinelvision/console/backend/internal/domain/channel"
	"github.com/sentinelvision/console/backend/internal/infrastructure/resilience"
	"github.com/sentinelvision/console/backend/internal/shared/id"
)

const (
	// writeWait bounds control frame writes.
	writeWait = 10 * time.Second
	// pongWait is how long a silent connection is considered alive.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxFrameSize caps inbound frames; the platform sends small JSON.
	maxFrameSize = 1 << 20

	defaultDialTimeout = 10 * time.Second
)

// FrameRecorder counts inbound stream traffic, typically backed by the
// monitoring package.
type FrameRecorder interface {
	RecordStreamMessage(channel string)
}

// StreamConfig configures one channel stream.
type StreamConfig struct {
	// Name of the channel to subscribe to ("events", "system").
	Name string
	// URL is the platform stream endpoint; the channel name is added as
	// a query parameter.
	URL string
	// MaxAttempts and Backoff bound automatic reconnection.
	MaxAttempts int
	Backoff     resilience.Policy
	// DialTimeout bounds each dial, default 10s.
	DialTimeout time.Duration
	// OnTransition passes through to the connection machine.
	OnTransition func(name string, from, to channel.ConnState)
	// Recorder is optional.
	Recorder FrameRecorder
}

// subscribeFrame is the first frame sent after each dial.
type subscribeFrame struct {
	Type      string `json:"type"`
	Channel   string `json:"channel"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
}

// Stream keeps one websocket open to the platform for a named channel.
// The embedded machine owns reconnection policy; the stream owns the
// socket, the keepalive, and frame handoff to the router.
type Stream struct {
	name        string
	url         string
	dialTimeout time.Duration
	dialer      *websocket.Dialer
	machine     *channel.Machine
	router      *Router
	recorder    FrameRecorder
	log         *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	sessID id.StreamID
	closed bool
}

// NewStream creates a stream for cfg. The logger may be nil.
func NewStream(cfg StreamConfig, router *Router, log *zap.Logger) (*Stream, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dialURL, err := BuildStreamURL(cfg.URL, cfg.Name)
	if err != nil {
		return nil, err
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}

	s := &Stream{
		name:        cfg.Name,
		url:         dialURL,
		dialTimeout: cfg.DialTimeout,
		dialer:      websocket.DefaultDialer,
		router:      router,
		recorder:    cfg.Recorder,
		log:         log,
	}
	s.machine = channel.NewMachine(cfg.Name, channel.Config{
		MaxAttempts:  cfg.MaxAttempts,
		Policy:       cfg.Backoff,
		OnTransition: cfg.OnTransition,
	}, s.dialOnce, log)
	return s, nil
}

// Machine exposes the connection machine for status queries and manual
// retry.
func (s *Stream) Machine() *channel.Machine {
	return s.machine
}

// Start begins the connect cycle.
func (s *Stream) Start() {
	s.machine.Connect()
}

// Stop closes the socket and parks the machine in disconnected.
func (s *Stream) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	// Disconnect first so the read loop's drop report is a no-op.
	s.machine.Disconnect()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		conn.Close()
	}
}

// dialOnce performs a single connection attempt. The machine calls it
// on its own goroutine and decides what happens on failure.
func (s *Stream) dialOnce() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.dialTimeout)
	conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
	cancel()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		s.machine.MarkDropped(err)
		return
	}

	sub := subscribeFrame{
		Type:      "subscribe",
		Channel:   s.name,
		RequestID: uuid.NewString(),
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		s.machine.MarkDropped(err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.sessID = id.NewStreamID()
	sess := s.sessID
	s.mu.Unlock()

	s.machine.MarkConnected()
	s.log.Info("stream connected",
		zap.String("channel", s.name),
		zap.String("session", sess.String()),
	)

	go s.readLoop(conn)
	go s.pingLoop(conn)
}

func (s *Stream) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		s.clearConn(conn)
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// After Stop the machine is disconnected and ignores this.
			s.machine.MarkDropped(err)
			return
		}

		s.machine.HandleMessage()
		if s.recorder != nil {
			s.recorder.RecordStreamMessage(s.name)
		}

		env, err := DecodeEnvelope(data)
		if err != nil {
			s.log.Debug("malformed frame dropped",
				zap.String("channel", s.name),
				zap.Error(err),
			)
			continue
		}
		s.router.Route(env)
	}
}

// pingLoop keeps the connection alive; it exits when writes start
// failing, which the read loop notices as well.
func (s *Stream) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		if err != nil {
			return
		}
	}
}

func (s *Stream) clearConn(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
}

// BuildStreamURL turns the configured platform endpoint into a dialable
// websocket URL for one channel. http(s) schemes are mapped to ws(s).
func BuildStreamURL(base, channelName string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("channel", channelName)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
