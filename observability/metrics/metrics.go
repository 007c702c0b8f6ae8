// Package metrics exposes Prometheus instrumentation for the swap engines.
package metrics

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"crosslock/core/events"
)

// Collector counts engine events by type and fans them out to an optional
// downstream emitter. It plugs into the engines as their events.Emitter so
// instrumentation never requires engine changes.
type Collector struct {
	events *prometheus.CounterVec
	next   events.Emitter
	logger *slog.Logger
}

// NewCollector registers the event counter with the given registerer and
// returns the collector. Pass prometheus.DefaultRegisterer for the process
// default registry.
func NewCollector(reg prometheus.Registerer, next events.Emitter) (*Collector, error) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crosslock",
		Name:      "engine_events_total",
		Help:      "Engine events emitted, labelled by event type.",
	}, []string{"type"})
	if reg != nil {
		if err := reg.Register(counter); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				counter = already.ExistingCollector.(*prometheus.CounterVec)
			} else {
				return nil, err
			}
		}
	}
	return &Collector{events: counter, next: next}, nil
}

// SetLogger attaches a logger that records each event at debug level.
func (c *Collector) SetLogger(logger *slog.Logger) { c.logger = logger }

// Emit implements events.Emitter.
func (c *Collector) Emit(evt events.Event) {
	if c == nil || evt == nil {
		return
	}
	c.events.WithLabelValues(evt.EventType()).Inc()
	if c.logger != nil {
		c.logger.Debug("engine event", slog.String("type", evt.EventType()))
	}
	if c.next != nil {
		c.next.Emit(evt)
	}
}
