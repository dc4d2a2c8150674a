package metrics

import (
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, c *SnapshotCollector) (map[string]float64, float64) {
	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(c))
	families, err := registry.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	connected := -1.0
	for _, f := range families {
		for _, m := range f.GetMetric() {
			switch f.GetName() {
			case "e3dc_connected":
				connected = m.GetGauge().GetValue()
			case "e3dc_snapshot_value":
				require.Len(t, m.GetLabel(), 1)
				values[m.GetLabel()[0].GetValue()] = m.GetGauge().GetValue()
			}
		}
	}
	return values, connected
}

func TestCollectorDescribe(t *testing.T) {

	c := NewSnapshotCollector()
	ch := make(chan *prometheus.Desc, 4)
	c.Describe(ch)
	close(ch)

	count := 0
	for range ch {
		count++
	}
	assert.Equal(t, 2, count)
}

func TestCollectorSnapshot(t *testing.T) {

	assert := assert.New(t)

	es := &eventstream.EventStream{}
	c := NewSnapshotCollector()
	c.Subscribe(es)
	defer c.Unsubscribe()

	values, connected := gather(t, c)
	assert.Empty(values)
	assert.Equal(0.0, connected)

	es.Publish(domain.ConnectionStateEvent{Connected: true})
	es.Publish(domain.SnapshotUpdatedEvent{Snapshot: domain.Snapshot{
		domain.KEY_SOLAR_PRODUCTION:         3000.0,
		domain.KEY_PSET_POWERSAVING_ENABLED: true,
		domain.KEY_PSET_LIMIT_CHARGE:        int32(4500),
		domain.KEY_SET_POWER_MODE:           "NORMAL",
		domain.KEY_SET_POWER_VAL:            nil,
	}})

	values, connected = gather(t, c)
	assert.Equal(1.0, connected)
	assert.Len(values, 3)
	assert.Equal(3000.0, values[domain.KEY_SOLAR_PRODUCTION])
	assert.Equal(1.0, values[domain.KEY_PSET_POWERSAVING_ENABLED])
	assert.Equal(4500.0, values[domain.KEY_PSET_LIMIT_CHARGE])

	es.Publish(domain.ConnectionStateEvent{Connected: false, Reason: "reauth_required"})
	_, connected = gather(t, c)
	assert.Equal(0.0, connected)
}

func TestModbusInstrument(t *testing.T) {

	registry := prometheus.NewRegistry()
	instrument, err := NewModbusInstrument(registry)
	require.NoError(t, err)

	instrument.RecordTime("readPowerFlow", 20*time.Millisecond)
	instrument.RecordTime("readPowerFlow", 40*time.Millisecond)

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "e3dc_modbus_read_seconds", families[0].GetName())
	require.Len(t, families[0].GetMetric(), 1)
	assert.Equal(t, uint64(2), families[0].GetMetric()[0].GetHistogram().GetSampleCount())

	_, err = NewModbusInstrument(registry)
	assert.Error(t, err, "registered twice")
}
