package transport

import (
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/sentinelvision/console/backend/internal/domain/health"
)

// Router fans decoded stream messages out to the domain trackers.
// Malformed payloads are dropped with a debug log; a bad frame must
// never take a channel down.
type Router struct {
	workers    *health.Workers
	aggregator *health.Aggregator
	onEvent    func(Envelope)
	log        *zap.Logger
}

// NewRouter creates a router. workers and aggregator may be nil when a
// deployment does not track them; onEvent receives event.* envelopes
// and may be nil. The logger may be nil.
func NewRouter(workers *health.Workers, aggregator *health.Aggregator, onEvent func(Envelope), log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		workers:    workers,
		aggregator: aggregator,
		onEvent:    onEvent,
		log:        log,
	}
}

// Route dispatches one envelope.
func (r *Router) Route(env Envelope) {
	switch env.Type {
	case TypeWorkerStarted:
		r.worker(env, health.KindStarted)
	case TypeWorkerStopped:
		r.worker(env, health.KindStopped)
	case TypeWorkerError:
		r.worker(env, health.KindError)
	case TypeWorkerRecovered:
		r.worker(env, health.KindRecovered)
	case TypeServiceHealth:
		r.health(env)
	case TypeSubscribed, TypePong:
		// Control acknowledgments carry no state.
	default:
		if strings.HasPrefix(env.Type, eventPrefix) {
			if r.onEvent != nil {
				r.onEvent(env)
			}
			return
		}
		r.log.Debug("unrecognized stream message dropped",
			zap.String("type", env.Type),
			zap.String("channel", env.Channel),
		)
	}
}

func (r *Router) worker(env Envelope, kind health.EventKind) {
	if r.workers == nil {
		return
	}
	var p WorkerPayload
	if err := sonic.Unmarshal(env.Payload, &p); err != nil {
		r.log.Debug("malformed worker payload dropped",
			zap.String("type", env.Type),
			zap.Error(err),
		)
		return
	}
	r.workers.Apply(health.Event{Kind: kind, Name: p.Name, Type: p.Type, Error: p.Error})
}

func (r *Router) health(env Envelope) {
	if r.aggregator == nil {
		return
	}
	var report health.Report
	if err := sonic.Unmarshal(env.Payload, &report); err != nil {
		r.log.Debug("malformed health payload dropped", zap.Error(err))
		return
	}
	r.aggregator.SetReport(report)
}
