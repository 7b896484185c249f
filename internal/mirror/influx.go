package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/solarlog/internal/poller"
	"github.com/nerrad567/solarlog/internal/registers"
)

// RegisterWriter queues time-series points. Satisfied by *influxdb.Client,
// whose writes are batched and non-blocking.
type RegisterWriter interface {
	WriteRegisters(instrument string, start int, values []uint16, at time.Time)
	WriteMetrics(instrument string, metrics map[string]float64, at time.Time)
}

// Influx is a poller.Observer that writes each record to InfluxDB.
type Influx struct {
	w       RegisterWriter
	catalog *registers.Catalog
}

// NewInflux creates an Influx mirror. A nil catalog writes raw registers only.
func NewInflux(w RegisterWriter, catalog *registers.Catalog) (*Influx, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: writer is required", ErrInvalidOptions)
	}
	return &Influx{w: w, catalog: catalog}, nil
}

// OnCycle implements poller.Observer. Failed reads are skipped.
func (m *Influx) OnCycle(_ context.Context, c poller.Cycle) {
	if !c.OK() {
		return
	}

	at := c.Record.Timestamp
	m.w.WriteRegisters(c.Instrument, c.Record.Start(), c.Record.Values(), at)

	if metrics := ScaledMetrics(c.Record, m.catalog); len(metrics) > 0 {
		m.w.WriteMetrics(c.Instrument, metrics, at)
	}
}
