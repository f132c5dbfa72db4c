package health

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WorkerState represents the lifecycle state of a platform worker
type WorkerState int

const (
	WorkerRunning WorkerState = iota
	WorkerStopped
	WorkerError
)

// String returns the string representation of the state
func (s WorkerState) String() string {
	switch s {
	case WorkerRunning:
		return "running"
	case WorkerStopped:
		return "stopped"
	case WorkerError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state as its string form
func (s WorkerState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes the string form back into a state
func (s *WorkerState) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"running"`:
		*s = WorkerRunning
	case `"stopped"`:
		*s = WorkerStopped
	case `"error"`:
		*s = WorkerError
	default:
		return fmt.Errorf("unknown worker state %s", data)
	}
	return nil
}

// WorkerStatus is the tracked state of one named background worker on
// the platform side.
type WorkerStatus struct {
	Name      string      `json:"name"`
	Type      string      `json:"type"`
	State     WorkerState `json:"state"`
	LastError string      `json:"last_error,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// EventKind classifies worker lifecycle notifications.
type EventKind int

const (
	KindStarted EventKind = iota
	KindStopped
	KindError
	KindRecovered
)

// Event is one worker lifecycle notification from the realtime stream.
type Event struct {
	Kind  EventKind
	Name  string
	Type  string
	Error string
}

// Summary holds the derived worker counts the UI header shows.
type Summary struct {
	Running  int  `json:"running"`
	Total    int  `json:"total"`
	HasError bool `json:"has_error"`
}

// Workers tracks platform workers by name. Entries appear on their
// first event and stay until an explicit Clear, so a stopped worker
// remains visible instead of silently vanishing.
type Workers struct {
	log *zap.Logger

	mu     sync.RWMutex
	byName map[string]*WorkerStatus
	order  []string
}

// NewWorkers creates an empty registry. The logger may be nil.
func NewWorkers(log *zap.Logger) *Workers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Workers{
		log:    log,
		byName: make(map[string]*WorkerStatus),
	}
}

// Apply folds one event into the registry. Events without a worker name
// are dropped with a debug log; they must never take the tracker down.
func (w *Workers) Apply(ev Event) bool {
	if ev.Name == "" {
		w.log.Debug("worker event without name dropped")
		return false
	}
	switch ev.Kind {
	case KindStarted, KindStopped, KindError, KindRecovered:
	default:
		w.log.Debug("unknown worker event kind dropped",
			zap.Int("kind", int(ev.Kind)),
			zap.String("worker", ev.Name),
		)
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	status, ok := w.byName[ev.Name]
	if !ok {
		status = &WorkerStatus{Name: ev.Name, Type: ev.Type}
		w.byName[ev.Name] = status
		w.order = append(w.order, ev.Name)
	}
	if ev.Type != "" {
		status.Type = ev.Type
	}

	switch ev.Kind {
	case KindStarted, KindRecovered:
		status.State = WorkerRunning
		status.LastError = ""
	case KindStopped:
		status.State = WorkerStopped
	case KindError:
		status.State = WorkerError
		status.LastError = ev.Error
	}
	status.UpdatedAt = time.Now()
	return true
}

// Snapshot returns worker statuses in first-seen order
func (w *Workers) Snapshot() []WorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snaps := make([]WorkerStatus, 0, len(w.order))
	for _, name := range w.order {
		snaps = append(snaps, *w.byName[name])
	}
	return snaps
}

// Summary returns the derived counts
func (w *Workers) Summary() Summary {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := Summary{Total: len(w.byName)}
	for _, status := range w.byName {
		switch status.State {
		case WorkerRunning:
			s.Running++
		case WorkerError:
			s.HasError = true
		}
	}
	return s
}

// Clear drops every tracked worker and reports how many were removed
func (w *Workers) Clear() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.byName)
	w.byName = make(map[string]*WorkerStatus)
	w.order = nil
	return n
}
