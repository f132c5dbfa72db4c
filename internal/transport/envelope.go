package transport

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// ErrNoType marks frames that carry no envelope type.
var ErrNoType = errors.New("envelope missing type")

// Stream message types the platform emits. Anything else is forwarded
// to the event callback when it looks like an event, or dropped.
const (
	TypeWorkerStarted   = "worker.started"
	TypeWorkerStopped   = "worker.stopped"
	TypeWorkerError     = "worker.error"
	TypeWorkerRecovered = "worker.recovered"
	TypeServiceHealth   = "service.health"
	TypeSubscribed      = "subscribed"
	TypePong            = "pong"

	// eventPrefix marks domain events ("event.detection", ...).
	eventPrefix = "event."
)

// Envelope is the wire frame every stream message arrives in.
type Envelope struct {
	Type      string          `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// WorkerPayload is the payload schema of worker.* messages.
type WorkerPayload struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Error string `json:"error,omitempty"`
}

// DecodeEnvelope parses one raw frame. Frames that are not JSON objects
// or lack a type are rejected; the caller drops them.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, ErrNoType
	}
	return env, nil
}
