package metrics

import (
	"time"

	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
	"github.com/prometheus/client_golang/prometheus"
)

// NewModbusInstrument records the duration of every Modbus read in the
// e3dc_modbus_read_seconds histogram, labelled by read function.
func NewModbusInstrument(registerer prometheus.Registerer) (*e3dc.ModbusInstrument, error) {
	readTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "e3dc_modbus_read_seconds",
		Help:    "Duration of Modbus register reads",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"fn"})
	if err := registerer.Register(readTime); err != nil {
		return nil, err
	}
	return &e3dc.ModbusInstrument{
		RecordTime: func(fnName string, d time.Duration) {
			readTime.WithLabelValues(fnName).Observe(d.Seconds())
		},
	}, nil
}
