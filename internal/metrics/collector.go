package metrics

import (
	"sync"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// SnapshotCollector implements prometheus.Collector over the last published
// snapshot. Numeric and boolean keys become e3dc_snapshot_value samples.
type SnapshotCollector struct {
	mu           sync.RWMutex
	snapshot     domain.Snapshot
	connected    bool
	subscription *eventstream.Subscription
	eventStream  *eventstream.EventStream

	value     *prometheus.Desc
	connState *prometheus.Desc
}

func NewSnapshotCollector() *SnapshotCollector {
	return &SnapshotCollector{
		snapshot: domain.Snapshot{},
		value: prometheus.NewDesc(
			"e3dc_snapshot_value",
			"Current value of a numeric or boolean snapshot key (booleans as 1/0)",
			[]string{"key"},
			nil,
		),
		connState: prometheus.NewDesc(
			"e3dc_connected",
			"Whether the coordinator holds a device session (1=yes, 0=no)",
			nil,
			nil,
		),
	}
}

// Subscribe keeps the collector up to date with the coordinator events.
func (c *SnapshotCollector) Subscribe(eventStream *eventstream.EventStream) {
	c.eventStream = eventStream
	c.subscription = eventStream.SubscribeWithPredicate(c.handle, func(evt any) bool {
		switch evt.(type) {
		case domain.SnapshotUpdatedEvent, domain.ConnectionStateEvent:
			return true
		}
		return false
	})
}

func (c *SnapshotCollector) Unsubscribe() {
	if c.subscription != nil {
		c.eventStream.Unsubscribe(c.subscription)
		c.subscription = nil
	}
}

func (c *SnapshotCollector) handle(evt any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch e := evt.(type) {
	case domain.SnapshotUpdatedEvent:
		c.snapshot = e.Snapshot
	case domain.ConnectionStateEvent:
		c.connected = e.Connected
	}
}

// Describe implements prometheus.Collector
func (c *SnapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.value
	ch <- c.connState
}

// Collect implements prometheus.Collector
func (c *SnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	connected := 0.0
	if c.connected {
		connected = 1
	}
	ch <- prometheus.MustNewConstMetric(c.connState, prometheus.GaugeValue, connected)

	for _, key := range c.snapshot.Keys() {
		if v, ok := numeric(c.snapshot[key]); ok {
			ch <- prometheus.MustNewConstMetric(c.value, prometheus.GaugeValue, v, key)
		}
	}
}

func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}
