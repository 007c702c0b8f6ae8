package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"crosslock/core/events"
)

type stubEvent string

func (e stubEvent) EventType() string { return string(e) }

type captureEmitter struct {
	seen []string
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.seen = append(c.seen, evt.EventType())
}

func TestCollectorCountsByType(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg, nil)
	require.NoError(t, err)

	collector.Emit(stubEvent("order.created"))
	collector.Emit(stubEvent("order.created"))
	collector.Emit(stubEvent("escrow.funded"))

	require.Equal(t, float64(2), testutil.ToFloat64(collector.events.WithLabelValues("order.created")))
	require.Equal(t, float64(1), testutil.ToFloat64(collector.events.WithLabelValues("escrow.funded")))
}

func TestCollectorFansOutDownstream(t *testing.T) {
	downstream := &captureEmitter{}
	collector, err := NewCollector(prometheus.NewRegistry(), downstream)
	require.NoError(t, err)

	collector.Emit(stubEvent("order.filled"))
	collector.Emit(nil)

	require.Equal(t, []string{"order.filled"}, downstream.seen)
}

func TestCollectorToleratesDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg, nil)
	require.NoError(t, err)
	second, err := NewCollector(reg, nil)
	require.NoError(t, err)

	first.Emit(stubEvent("order.created"))
	second.Emit(stubEvent("order.created"))

	// Both collectors share the underlying counter.
	require.Equal(t, float64(2), testutil.ToFloat64(first.events.WithLabelValues("order.created")))
}
