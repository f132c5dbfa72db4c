// Package testutil provides testing utilities and helpers for backend tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
)

// PlatformStub imitates the monitoring platform REST API. The zero
// state answers every endpoint successfully; failure modes are toggled
// per test.
type PlatformStub struct {
	srv *httptest.Server

	eventsCalls  atomic.Int64
	healthCalls  atomic.Int64
	eventsStatus atomic.Int64
	retryAfter   atomic.Int64
	redisHealthy atomic.Bool
}

// NewPlatformStub starts the stub. It is closed with the test.
func NewPlatformStub(t *testing.T) *PlatformStub {
	t.Helper()

	p := &PlatformStub{}
	p.eventsStatus.Store(http.StatusOK)
	p.redisHealthy.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/events", func(w http.ResponseWriter, r *http.Request) {
		p.eventsCalls.Add(1)
		status := int(p.eventsStatus.Load())
		if status != http.StatusOK {
			if status == http.StatusTooManyRequests {
				if ra := p.retryAfter.Load(); ra > 0 {
					w.Header().Set("Retry-After", strconv.FormatInt(ra, 10))
				}
			}
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"events": []any{}})
	})
	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		p.healthCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":        "healthy",
			"redis_healthy": p.redisHealthy.Load(),
		})
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

// URL returns the stub's base URL.
func (p *PlatformStub) URL() string { return p.srv.URL }

// EventsCalls reports how many times /v1/events was hit.
func (p *PlatformStub) EventsCalls() int64 { return p.eventsCalls.Load() }

// HealthCalls reports how many times /v1/health was hit.
func (p *PlatformStub) HealthCalls() int64 { return p.healthCalls.Load() }

// SetEventsStatus changes the status code /v1/events answers with.
func (p *PlatformStub) SetEventsStatus(code int) { p.eventsStatus.Store(int64(code)) }

// SetRetryAfter sets the Retry-After seconds attached to 429 responses.
func (p *PlatformStub) SetRetryAfter(seconds int) { p.retryAfter.Store(int64(seconds)) }

// SetRedisHealthy toggles the health report.
func (p *PlatformStub) SetRedisHealthy(healthy bool) { p.redisHealthy.Store(healthy) }

// StreamStub imitates the platform websocket stream endpoint. It
// accepts any number of connections, drains inbound frames so control
// traffic keeps flowing, and lets tests push envelopes to every
// connected client.
type StreamStub struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
}

// NewStreamStub starts the stub. It is closed with the test.
func NewStreamStub(t *testing.T) *StreamStub {
	t.Helper()

	s := &StreamStub{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		// Drain the subscribe frame and pings until the peer goes away.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(s.Close)
	return s
}

// URL returns a ws:// URL for the stub.
func (s *StreamStub) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// Connections reports how many clients connected so far.
func (s *StreamStub) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Push writes one JSON frame to every connected client.
func (s *StreamStub) Push(t *testing.T, frame any) {
	t.Helper()

	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.WriteMessage(websocket.TextMessage, data)
	}
}

// Close drops all connections and stops accepting new ones. Safe to
// call more than once.
func (s *StreamStub) Close() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	s.srv.Close()
}
